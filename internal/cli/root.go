// Package cli provides rankctl, the command-line interface for migrating,
// seeding, recalculating and inspecting rankings.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	service "github.com/ssherman/the-greatest-sub000/internal/app"
	"github.com/ssherman/the-greatest-sub000/internal/bootstrap"
	"github.com/ssherman/the-greatest-sub000/internal/config"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// globals holds the persistent flags and the loaded config.
type globals struct {
	cfgFile     string
	store       string
	databaseURL string
	logLevel    string
	json        bool

	cfg *config.Config
}

// NewRootCmd creates the rankctl command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "rankctl",
		Short: "Manage ranking configurations and their materialized rankings",
		Long: `rankctl works directly against the ranking store. It applies migrations,
seeds demo data, recalculates configurations and prints ranked items and
lists. Settings come from RANKING_* variables, an optional YAML file and
the flags below.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return g.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.cfgFile, "config", "", "YAML config file (default: $RANKING_CONFIG)")
	pf.StringVar(&g.store, "store", "", "store backend: memory, sqlite or postgres")
	pf.StringVar(&g.databaseURL, "database-url", "", "DSN for the sqlite and postgres stores")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&g.json, "json", false, "print JSON instead of tables")

	_ = rootCmd.RegisterFlagCompletionFunc("store", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.StoreMemory, config.StoreSQLite, config.StorePostgres}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		newMigrateCommand(g),
		newSeedCommand(g),
		newRecalculateCommand(g),
		newRecalculateAllCommand(g),
		newShowCommand(g),
		newListsCommand(g),
	)
	return rootCmd
}

// Execute runs rankctl with the process arguments.
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func (g *globals) load(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx, config.WithFile(g.cfgFile))
	if err != nil {
		return err
	}
	if g.store != "" {
		cfg.StoreBackend = g.store
	}
	if g.databaseURL != "" {
		cfg.DatabaseURL = g.databaseURL
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// stdout carries command output
	if err := bootstrap.InitLogging(ctx, cfg, logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

// session is an opened store with a started service on top.
type session struct {
	res *bootstrap.Resources
	svc *service.Service
}

func (g *globals) open(ctx context.Context) (*session, error) {
	res, err := bootstrap.Open(ctx, g.cfg)
	if err != nil {
		return nil, err
	}
	svc := service.New(bootstrap.ServiceOptions(g.cfg, res)...)
	if err := svc.Start(ctx); err != nil {
		_ = res.Close()
		return nil, err
	}
	return &session{res: res, svc: svc}, nil
}

func (s *session) close() {
	s.svc.Stop()
	if err := s.res.Close(); err != nil {
		logger.Get().Warn(context.Background(), "closing backends failed", logger.Error(err))
	}
}
