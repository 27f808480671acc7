package main

import (
	"fmt"
	"os"

	"github.com/natserract/zcrm/pkg/crmsync"
	"github.com/natserract/zcrm/pkg/crmsync/postgres"
	"github.com/natserract/zcrm/pkg/zohocrm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncFile    string
	syncWorkers int
	syncLedger  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert a batch of records from a job file",
	Long: `Sync reads a job file and upserts each record, matching on match_field:

  {
    "module": "Accounts",
    "match_field": "Account_Name",
    "records": [{"Account_Name": "Acme", "Phone": "555"}]
  }

Each worker owns its own CRM client. With --ledger every outcome is written
to the crm_sync_results table using the DB_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVarP(&syncFile, "file", "f", "", "JSON job file")
	syncCmd.Flags().IntVarP(&syncWorkers, "workers", "w", 4, "number of concurrent clients")
	syncCmd.Flags().BoolVar(&syncLedger, "ledger", false, "record results in PostgreSQL")
	_ = syncCmd.MarkFlagRequired("file")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := os.Open(syncFile)
	if err != nil {
		return fmt.Errorf("failed to open job file: %w", err)
	}
	job, err := crmsync.ReadJob(f)
	f.Close()
	if err != nil {
		return err
	}

	if syncWorkers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	clients := []crmsync.Upserter{client}
	for len(clients) < syncWorkers {
		c, err := zohocrm.NewClientWithLogger(cfg, logger)
		if err != nil {
			return err
		}
		clients = append(clients, c)
	}

	var recorder crmsync.Recorder
	if syncLedger {
		db, err := postgres.New(ctx, postgres.NewConfig(), logger)
		if err != nil {
			logger.Error("Failed to connect to database", zap.Error(err))
			return err
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			return err
		}
		recorder = postgres.NewLedger(db.Pool(), logger)
	}

	svc, err := crmsync.NewService(clients, recorder, logger)
	if err != nil {
		return err
	}

	metrics, err := svc.Sync(ctx, *job)
	if metrics != nil {
		if perr := printJSON(cmd.OutOrStdout(), map[string]any{
			"job_id":   metrics.JobID,
			"inserted": metrics.Inserted,
			"updated":  metrics.Updated,
			"rejected": metrics.Rejected,
			"failed":   metrics.Failed,
			"skipped":  metrics.Skipped,
		}); perr != nil {
			return perr
		}
	}
	return err
}
