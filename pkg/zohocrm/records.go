package zohocrm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Create inserts the payload records and returns them as stored.
func (c *Client) Create(ctx context.Context, module string, payload *Payload) (*MutationResult, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	return c.mutate(ctx, ActionInsert, module, apiRequest{
		method: http.MethodPost,
		path:   module,
		body:   payload.withDefaults(),
	})
}

// Update modifies existing records. A single record carrying an id goes to
// module/{id}; anything else is a bulk update on the module endpoint, where
// every record must carry its own id.
func (c *Client) Update(ctx context.Context, module string, payload *Payload) (*MutationResult, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	path := module
	if len(payload.Data) == 1 && payload.Data[0].ID() != "" {
		path = module + "/" + payload.Data[0].ID()
	}
	return c.mutate(ctx, ActionUpdate, module, apiRequest{
		method: http.MethodPut,
		path:   path,
		body:   payload.withDefaults(),
	})
}

// Delete removes one record.
func (c *Client) Delete(ctx context.Context, module, id string) (*MutationResult, error) {
	if id == "" {
		return nil, configError("record id is required")
	}
	outcome, err := c.do(ctx, apiRequest{
		method: http.MethodDelete,
		path:   module,
		query:  url.Values{"ids": []string{id}},
	})
	if result, ok := rejected(ActionDelete, outcome, err); ok {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("Deleted record", zap.String("module", module), zap.String("id", id))
	return &MutationResult{
		OK:         !outcome.Accepted(),
		Action:     ActionDelete,
		StatusCode: outcome.StatusCode,
		Raw:        outcome.Raw,
	}, nil
}

// GetByID fetches a single record. An empty response is ErrRecordNotFound; a
// body without data[0] is ErrProtocol.
func (c *Client) GetByID(ctx context.Context, module, id string) (Record, error) {
	outcome, err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   module + "/" + id,
	})
	if err != nil {
		return nil, err
	}
	if outcome.Kind == OutcomeEmpty {
		return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, module, id)
	}

	raw, ok := outcome.Body["data"]
	if !ok {
		return nil, protocolError("response for %s/%s has no data key", module, id)
	}
	records, err := toRecords(raw)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, protocolError("response for %s/%s has an empty data list", module, id)
	}
	return records[0], nil
}

// Upsert updates the first record matching criteria or inserts when nothing
// matches. Without criteria it always inserts.
//
// The search and the write are separate calls, so a record inserted by
// someone else in between is not seen and a duplicate can result. When the
// search returns several matches the first one in server order wins.
func (c *Client) Upsert(ctx context.Context, module string, payload *Payload, criteria string) (*MutationResult, error) {
	if criteria == "" {
		return c.Create(ctx, module, payload)
	}
	if payload == nil || len(payload.Data) != 1 {
		n := 0
		if payload != nil {
			n = len(payload.Data)
		}
		return nil, configError("upsert with criteria needs exactly one record, got %d", n)
	}

	matches, err := c.Collect(ctx, module, QueryOptions{Criteria: criteria})
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		c.logger.Debug("No match for upsert, inserting",
			zap.String("module", module),
			zap.String("criteria", criteria))
		return c.Create(ctx, module, payload)
	}

	id := matches[0].ID()
	if id == "" {
		return nil, protocolError("search match in %s has no id", module)
	}
	if len(matches) > 1 {
		c.logger.Warn("Upsert criteria matched several records, updating the first",
			zap.String("module", module),
			zap.String("criteria", criteria),
			zap.Int("matches", len(matches)),
			zap.String("id", id))
	}

	record := payload.Data[0].clone()
	record["id"] = id
	return c.Update(ctx, module, &Payload{Data: []Record{record}, Trigger: payload.Trigger})
}

// GetRelatedRecords fetches the child records of one parent in a single
// request. The bool is false when the remote has nothing (or nothing newer
// than modifiedSince).
func (c *Client) GetRelatedRecords(ctx context.Context, parent, child, parentID string, modifiedSince time.Time) (bool, []Record, error) {
	req := apiRequest{
		method: http.MethodGet,
		path:   RelatedModule(parent, parentID, child),
	}
	if !modifiedSince.IsZero() {
		req.headers = map[string]string{"If-Modified-Since": FormatTime(modifiedSince)}
	}

	outcome, err := c.do(ctx, req)
	if err != nil {
		return false, nil, err
	}
	if outcome.Kind == OutcomeEmpty {
		return false, nil, nil
	}

	raw, ok := outcome.Body["data"]
	if !ok {
		return false, nil, protocolError("related %s of %s/%s has no data key", child, parent, parentID)
	}
	records, err := toRecords(raw)
	if err != nil {
		return false, nil, err
	}
	return true, records, nil
}

// mutate sends a create or update and re-reads every stored record so the
// caller sees server-side defaults. Per-record errors in the reply make the
// result not OK. When a re-read fails after a successful write, the result is
// OK, holds the detail entries (carrying the ids) in place of the missing
// records, and is returned together with the error.
func (c *Client) mutate(ctx context.Context, action, module string, req apiRequest) (*MutationResult, error) {
	outcome, err := c.do(ctx, req)
	if result, ok := rejected(action, outcome, err); ok {
		c.logger.Warn("Mutation rejected",
			zap.String("module", module),
			zap.String("action", action),
			zap.Int("status_code", result.StatusCode),
			zap.String("response", string(result.Raw)))
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if outcome.Kind == OutcomeEmpty {
		return nil, protocolError("%s on %s returned no body", action, module)
	}

	result := &MutationResult{
		Action:     action,
		StatusCode: outcome.StatusCode,
		Raw:        outcome.Raw,
	}
	if outcome.Accepted() {
		c.logger.Warn("Mutation accepted with record errors",
			zap.String("module", module),
			zap.String("action", action),
			zap.String("response", string(outcome.Raw)))
		return result, nil
	}

	details, err := parseRecordDetails(outcome.Raw)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, protocolError("%s on %s returned no record details", action, module)
	}

	for _, detail := range details {
		if detail.Status == "error" {
			c.logger.Warn("Mutation returned record errors",
				zap.String("module", module),
				zap.String("action", action),
				zap.String("code", detail.Code),
				zap.String("response", string(outcome.Raw)))
			return result, nil
		}
	}
	for i, detail := range details {
		if detail.ID() == "" {
			return nil, protocolError("%s on %s: data[%d].details.id is missing", action, module, i)
		}
	}

	// The write has landed; a failed re-read still reports success.
	result.OK = true
	for i, detail := range details {
		record, err := c.GetByID(ctx, module, detail.ID())
		if err != nil {
			c.logger.Warn("Mutation succeeded but re-reading the record failed",
				zap.String("module", module),
				zap.String("action", action),
				zap.String("id", detail.ID()),
				zap.Error(err))
			for _, rest := range details[i:] {
				result.Records = append(result.Records, Record(rest.Details).clone())
			}
			return result, fmt.Errorf("%s on %s succeeded but re-reading record %s failed: %w", action, module, detail.ID(), err)
		}
		result.Records = append(result.Records, record)
	}

	c.logger.Info("Mutation succeeded",
		zap.String("module", module),
		zap.String("action", action),
		zap.Int("records", len(result.Records)))
	return result, nil
}

// rejected turns a remote rejection into a non-error MutationResult.
func rejected(action string, outcome Outcome, err error) (*MutationResult, bool) {
	if err == nil || !errors.Is(err, ErrRemoteRejection) {
		return nil, false
	}
	return &MutationResult{
		OK:         false,
		Action:     action,
		StatusCode: outcome.StatusCode,
		Raw:        outcome.Raw,
	}, true
}

func checkPayload(payload *Payload) error {
	if payload == nil || len(payload.Data) == 0 {
		return configError("payload has no records")
	}
	return nil
}
