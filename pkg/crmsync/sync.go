// Package crmsync upserts batches of records into Zoho CRM with a bounded
// set of clients.
//
// A zohocrm.Client must not be shared between goroutines, so the service
// owns a fixed set of clients and hands each one to exactly one task at a
// time. The worker pool is bounded to the number of clients. Records of a
// job that share a match value run in order on one task, so they never race
// each other into duplicate inserts.
package crmsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/natserract/zcrm/pkg/zohocrm"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Service runs sync jobs.
type Service struct {
	clients  chan Upserter
	workers  int
	recorder Recorder
	logger   *zap.Logger
}

// NewService creates a sync service over the given clients. Each client is
// used by at most one goroutine at a time. recorder may be nil.
func NewService(clients []Upserter, recorder Recorder, logger *zap.Logger) (*Service, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: sync service needs at least one client", zohocrm.ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	free := make(chan Upserter, len(clients))
	for _, c := range clients {
		free <- c
	}

	return &Service{
		clients:  free,
		workers:  len(clients),
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Sync upserts every record of the job. Per-record failures are counted in
// the returned metrics. A quota error stops the remaining records, which are
// counted as skipped, and is returned.
func (s *Service) Sync(ctx context.Context, job Job) (*Metrics, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	metrics := &Metrics{JobID: uuid.New()}
	logger := s.logger.With(
		zap.String("job_id", metrics.JobID.String()),
		zap.String("module", job.Module))

	logger.Info("Starting sync job",
		zap.Int("total_records", len(job.Records)),
		zap.String("match_field", job.MatchField),
		zap.Int("workers", s.workers))

	p := pool.New().
		WithMaxGoroutines(s.workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for _, group := range groupByMatch(job) {
		p.Go(func(ctx context.Context) error {
			return s.syncGroup(ctx, logger, job, group, metrics)
		})
	}

	err := p.Wait()

	logger.Info("Completed sync job",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("inserted", metrics.Inserted),
		zap.Int("updated", metrics.Updated),
		zap.Int("rejected", metrics.Rejected),
		zap.Int("failed", metrics.Failed),
		zap.Int("skipped", metrics.Skipped),
		zap.Int("total_succeeded", metrics.TotalSucceeded()),
		zap.Int("total_failed", metrics.TotalFailed()))

	if err != nil {
		return metrics, fmt.Errorf("sync job %s stopped: %w", metrics.JobID, err)
	}
	return metrics, nil
}

// groupByMatch returns record indexes grouped by match value, in job order.
// Records without a match value form groups of one.
func groupByMatch(job Job) [][]int {
	var groups [][]int
	byValue := make(map[string]int)
	for idx, record := range job.Records {
		value := matchValue(record, job.MatchField)
		if value == "" {
			groups = append(groups, []int{idx})
			continue
		}
		if g, ok := byValue[value]; ok {
			groups[g] = append(groups[g], idx)
			continue
		}
		byValue[value] = len(groups)
		groups = append(groups, []int{idx})
	}
	return groups
}

// syncGroup runs records sharing a match value one after another on a single
// client, so a later record sees the one an earlier record inserted.
func (s *Service) syncGroup(ctx context.Context, logger *zap.Logger, job Job, group []int, metrics *Metrics) error {
	client := <-s.clients
	defer func() { s.clients <- client }()

	var stopErr error
	for _, idx := range group {
		if stopErr != nil {
			s.finish(ctx, logger, s.newResult(job, idx, metrics, StatusSkipped, stopErr), metrics)
			continue
		}
		stopErr = s.syncRecord(ctx, logger, client, job, idx, metrics)
	}
	return stopErr
}

func (s *Service) newResult(job Job, idx int, metrics *Metrics, status string, err error) Result {
	result := Result{
		ID:         uuid.New(),
		JobID:      metrics.JobID,
		Module:     job.Module,
		Index:      idx,
		MatchValue: matchValue(job.Records[idx], job.MatchField),
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (s *Service) syncRecord(ctx context.Context, logger *zap.Logger, client Upserter, job Job, idx int, metrics *Metrics) error {
	if err := ctx.Err(); err != nil {
		s.finish(ctx, logger, s.newResult(job, idx, metrics, StatusSkipped, err), metrics)
		return nil
	}

	record := job.Records[idx]
	result := s.newResult(job, idx, metrics, "", nil)

	criteria := ""
	if result.MatchValue != "" {
		criteria = zohocrm.Criterion(job.MatchField, "equals", result.MatchValue)
	}

	startTime := time.Now()
	payload := &zohocrm.Payload{Data: []zohocrm.Record{record}, Trigger: job.Trigger}
	mutation, err := client.Upsert(ctx, job.Module, payload, criteria)
	result.Duration = time.Since(startTime)

	switch {
	case mutation != nil && mutation.OK:
		// A write that landed counts as done even if re-reading it failed.
		result.StatusCode = mutation.StatusCode
		result.RecordID = mutation.Record().ID()
		result.Status = StatusInserted
		if mutation.Action == zohocrm.ActionUpdate {
			result.Status = StatusUpdated
		}
		if err != nil {
			result.Error = err.Error()
		}
	case err != nil:
		result.Status = StatusFailed
		result.Error = err.Error()
		var apiErr *zohocrm.APIError
		if errors.As(err, &apiErr) {
			result.StatusCode = apiErr.StatusCode
		}
	default:
		result.Status = StatusRejected
		result.StatusCode = mutation.StatusCode
		result.Response = mutation.Raw
	}

	s.finish(ctx, logger, result, metrics)

	if errors.Is(err, zohocrm.ErrQuotaExceeded) {
		return err
	}
	return nil
}

func (s *Service) finish(ctx context.Context, logger *zap.Logger, result Result, metrics *Metrics) {
	metrics.Add(result.Status)

	fields := []zap.Field{
		zap.Int("index", result.Index),
		zap.String("match_value", result.MatchValue),
		zap.String("status", result.Status),
		zap.String("record_id", result.RecordID),
		zap.Int("status_code", result.StatusCode),
		zap.Duration("duration", result.Duration),
	}
	switch result.Status {
	case StatusFailed:
		logger.Error("Failed to sync record", append(fields, zap.String("error", result.Error))...)
	case StatusRejected:
		logger.Warn("Record rejected", append(fields, zap.String("response", string(result.Response)))...)
	case StatusSkipped:
		logger.Debug("Skipped record", fields...)
	default:
		logger.Debug("Synced record", fields...)
	}

	if s.recorder == nil {
		return
	}
	// The job context may already be cancelled; the ledger should still
	// receive the row.
	if err := s.recorder.Record(context.WithoutCancel(ctx), result); err != nil {
		logger.Warn("Failed to record sync result",
			zap.String("result_id", result.ID.String()),
			zap.Error(err))
	}
}

func matchValue(record zohocrm.Record, field string) string {
	if field == "" {
		return ""
	}
	v, ok := record[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
