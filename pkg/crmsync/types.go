package crmsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natserract/zcrm/pkg/zohocrm"
)

// Result statuses.
const (
	StatusInserted = "inserted"
	StatusUpdated  = "updated"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// Job is a batch of records to upsert into one module. Records carrying a
// value for MatchField are matched on it; the rest are always created.
type Job struct {
	Module     string           `json:"module"`
	MatchField string           `json:"match_field"`
	Records    []zohocrm.Record `json:"records"`
	Trigger    []string         `json:"trigger,omitempty"`
}

// ReadJob decodes a Job from JSON.
func ReadJob(r io.Reader) (*Job, error) {
	var job Job
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode sync job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks that the job names a module.
func (j *Job) Validate() error {
	if j.Module == "" {
		return fmt.Errorf("%w: sync job has no module", zohocrm.ErrConfiguration)
	}
	return nil
}

// Result is the outcome of one record of a job.
type Result struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	Module     string
	Index      int
	MatchValue string
	Status     string
	RecordID   string
	StatusCode int
	Error      string
	Response   []byte
	Duration   time.Duration
	CreatedAt  time.Time
}

// Recorder stores per-record results, for example in a database ledger.
type Recorder interface {
	Record(ctx context.Context, result Result) error
}

// Upserter is the part of the CRM client a sync worker uses.
type Upserter interface {
	Upsert(ctx context.Context, module string, payload *zohocrm.Payload, criteria string) (*zohocrm.MutationResult, error)
}

// Metrics tracks the overall sync operation metrics
type Metrics struct {
	JobID    uuid.UUID
	Inserted int
	Updated  int
	Rejected int
	Failed   int
	Skipped  int
	mu       sync.Mutex
}

// Add counts one result by status
func (m *Metrics) Add(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch status {
	case StatusInserted:
		m.Inserted++
	case StatusUpdated:
		m.Updated++
	case StatusRejected:
		m.Rejected++
	case StatusFailed:
		m.Failed++
	case StatusSkipped:
		m.Skipped++
	}
}

// TotalSucceeded returns the number of inserted and updated records
func (m *Metrics) TotalSucceeded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Inserted + m.Updated
}

// TotalFailed returns the number of records that were not written
func (m *Metrics) TotalFailed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Rejected + m.Failed + m.Skipped
}
