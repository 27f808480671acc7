package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/natserract/zcrm/pkg/crmsync"
	"github.com/natserract/zcrm/pkg/crmsync/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestLedger_Record(t *testing.T) {
	t.Parallel()

	t.Run("writes one row per result", func(t *testing.T) {
		t.Parallel()

		db := &fakeExecer{}
		ledger := postgres.NewLedger(db, zap.NewNop())

		result := crmsync.Result{
			ID:         uuid.New(),
			JobID:      uuid.New(),
			Module:     "Accounts",
			Index:      3,
			MatchValue: "Acme",
			Status:     crmsync.StatusRejected,
			StatusCode: 202,
			Response:   []byte(`{"data":[{"status":"error"}]}`),
			Duration:   1500 * time.Millisecond,
			CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}
		require.NoError(t, ledger.Record(context.Background(), result))

		require.Len(t, db.calls, 1)
		call := db.calls[0]
		assert.Contains(t, call.sql, "INSERT INTO crm_sync_results")
		require.Len(t, call.args, 12)
		assert.Equal(t, result.ID, call.args[0])
		assert.Equal(t, result.JobID, call.args[1])
		assert.Equal(t, int32(3), call.args[3])
		assert.Equal(t, crmsync.StatusRejected, call.args[5])
		assert.Equal(t, int32(202), call.args[7])

		response, ok := call.args[9].(*string)
		require.True(t, ok)
		require.NotNil(t, response)
		assert.JSONEq(t, `{"data":[{"status":"error"}]}`, *response)
		assert.Equal(t, int64(1500), call.args[10])
	})

	t.Run("empty response is stored as null", func(t *testing.T) {
		t.Parallel()

		db := &fakeExecer{}
		ledger := postgres.NewLedger(db, nil)
		require.NoError(t, ledger.Record(context.Background(), crmsync.Result{ID: uuid.New(), Status: crmsync.StatusInserted}))

		require.Len(t, db.calls, 1)
		assert.Nil(t, db.calls[0].args[9].(*string))
	})

	t.Run("exec errors are wrapped", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection refused")
		ledger := postgres.NewLedger(&fakeExecer{err: cause}, zap.NewNop())

		err := ledger.Record(context.Background(), crmsync.Result{ID: uuid.New()})
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
	})
}

func TestNewConfig(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "sync")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "crm")
	t.Setenv("DB_SSLMODE", "")

	cfg := postgres.NewConfig()
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, "host=db.internal port=6543 user=sync password=pw dbname=crm sslmode=disable", cfg.DSN())

	t.Setenv("DB_PORT", "not-a-port")
	assert.Equal(t, 5432, postgres.NewConfig().Port)

	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		t.Setenv(key, "")
	}
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=zcrm sslmode=disable", postgres.NewConfig().DSN())
}
