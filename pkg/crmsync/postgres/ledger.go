package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/natserract/zcrm/pkg/crmsync"
	"go.uber.org/zap"
)

const insertResultSQL = `
INSERT INTO crm_sync_results (
    id, job_id, module, record_index, match_value, status,
    record_id, status_code, error, response, duration_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Execer is satisfied by *pgxpool.Pool, pgx.Tx and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Ledger is a crmsync.Recorder writing one row per synced record.
type Ledger struct {
	db     Execer
	logger *zap.Logger
}

var _ crmsync.Recorder = (*Ledger)(nil)

func NewLedger(db Execer, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger}
}

func (l *Ledger) Record(ctx context.Context, result crmsync.Result) error {
	var response *string
	if len(result.Response) > 0 {
		s := string(result.Response)
		response = &s
	}

	_, err := l.db.Exec(ctx, insertResultSQL,
		result.ID,
		result.JobID,
		result.Module,
		int32(result.Index),
		result.MatchValue,
		result.Status,
		result.RecordID,
		int32(result.StatusCode),
		result.Error,
		response,
		result.Duration.Milliseconds(),
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync result %s: %w", result.ID, err)
	}

	l.logger.Debug("Recorded sync result",
		zap.String("result_id", result.ID.String()),
		zap.String("job_id", result.JobID.String()),
		zap.String("status", result.Status))
	return nil
}
