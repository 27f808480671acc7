// Command zcrm is a command line client for the Zoho CRM API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/natserract/zcrm/pkg/config"
	"github.com/natserract/zcrm/pkg/zohocrm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// configFile is set by the --config flag.
	configFile string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
	client *zohocrm.Client
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zcrm",
	Short: "zcrm talks to the Zoho CRM REST API",
	Long: `zcrm reads and writes Zoho CRM records.

Credentials come from ZOHOCRM_* environment variables, a .env file or a
zcrm.yaml config file. The access token is cached in ZOHOCRM_TOKEN_DIR and
refreshed automatically.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./zcrm.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(refreshTokenCmd)
}

// setup builds the logger, configuration and client shared by every command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	logger, err = newLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err = config.LoadFromFile(configFile)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err = zohocrm.NewClientWithLogger(cfg, logger)
	if err != nil {
		logger.Error("Failed to create CRM client", zap.Error(err))
		return err
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
