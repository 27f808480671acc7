package zohocrm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Common user types accepted by GetUsers.
const (
	UserTypeAll     = "AllUsers"
	UserTypeActive  = "ActiveUsers"
	UserTypeCurrent = "CurrentUser"
)

// GetUsers lists CRM users of the given type, AllUsers when empty. Results
// are cached per type for the life of the client or until
// InvalidateUserCache.
func (c *Client) GetUsers(ctx context.Context, userType string) ([]User, error) {
	if userType == "" {
		userType = UserTypeAll
	}
	if users, ok := c.userCache[userType]; ok {
		return users, nil
	}

	outcome, err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "users",
		query:  url.Values{"type": []string{userType}},
	})
	if err != nil {
		return nil, err
	}

	var users []User
	if outcome.Kind != OutcomeEmpty {
		var resp usersResponse
		if err := json.Unmarshal(outcome.Raw, &resp); err != nil {
			return nil, protocolError("unreadable users response: %v", err)
		}
		users = resp.Users
	}

	if c.userCache == nil {
		c.userCache = make(map[string][]User)
	}
	c.userCache[userType] = users
	c.logger.Debug("Cached users", zap.String("user_type", userType), zap.Int("count", len(users)))
	return users, nil
}

// InvalidateUserCache drops every cached user list.
func (c *Client) InvalidateUserCache() {
	c.userCache = nil
}

// FindUserByName returns the name and id of the active user whose full name
// matches exactly. A missing or inactive user resolves to the configured
// default user.
func (c *Client) FindUserByName(ctx context.Context, fullName string) (string, string, error) {
	users, err := c.GetUsers(ctx, UserTypeAll)
	if err != nil {
		return "", "", err
	}

	name := strings.TrimSpace(fullName)
	for _, user := range users {
		if user.FullName != name {
			continue
		}
		if user.Active() {
			return name, user.ID, nil
		}
		c.logger.Debug("User is inactive, using default user", zap.String("full_name", name))
		return c.config.DefaultUserName, c.config.DefaultUserID, nil
	}

	c.logger.Info("User not found, using default user", zap.String("full_name", name))
	return c.config.DefaultUserName, c.config.DefaultUserID, nil
}
