package zohocrm

import (
	"context"
	"iter"
	"time"
)

// CRMClient defines the interface for Zoho CRM API operations
type CRMClient interface {
	// RefreshToken exchanges the refresh token for a new access token
	RefreshToken(ctx context.Context) (*Token, error)

	// Pages lazily lists a module, or searches it when criteria are set
	Pages(ctx context.Context, module string, opts QueryOptions) iter.Seq2[Page, error]

	// Collect drains Pages into a single slice
	Collect(ctx context.Context, module string, opts QueryOptions) ([]Record, error)

	// GetByID retrieves one record
	GetByID(ctx context.Context, module, id string) (Record, error)

	// GetRelatedRecords retrieves the child records of a parent record
	GetRelatedRecords(ctx context.Context, parent, child, parentID string, modifiedSince time.Time) (bool, []Record, error)

	// Create inserts records
	Create(ctx context.Context, module string, payload *Payload) (*MutationResult, error)

	// Update modifies records by id
	Update(ctx context.Context, module string, payload *Payload) (*MutationResult, error)

	// Delete removes a record
	Delete(ctx context.Context, module, id string) (*MutationResult, error)

	// Upsert updates the first record matching criteria or inserts a new one
	Upsert(ctx context.Context, module string, payload *Payload, criteria string) (*MutationResult, error)

	// GetUsers lists users of a type, cached per client
	GetUsers(ctx context.Context, userType string) ([]User, error)

	// InvalidateUserCache drops the cached user lists
	InvalidateUserCache()

	// FindUserByName resolves an active user by full name, else the default user
	FindUserByName(ctx context.Context, fullName string) (string, string, error)
}

var _ CRMClient = (*Client)(nil)
