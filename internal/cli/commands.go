package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/config"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/ranking"
	"github.com/ssherman/the-greatest-sub000/internal/seed"
)

var errNeedsSQLStore = errors.New("command needs the sqlite or postgres store")

func newMigrateCommand(g *globals) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if g.cfg.StoreBackend == config.StoreMemory {
				return errNeedsSQLStore
			}
			d, err := repository.ParseDialect(g.cfg.StoreBackend)
			if err != nil {
				return err
			}
			g.cfg.AutoMigrate = false
			sess, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			db := sess.res.SQL().DB()
			if !statusOnly {
				if err := repository.Migrate(ctx, db, d); err != nil {
					return err
				}
			}
			version, err := repository.MigrationVersion(ctx, db, d)
			if err != nil {
				return err
			}
			if g.json {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"version": version})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return err
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print the current version without migrating")
	return cmd
}

func newSeedCommand(g *globals) *cobra.Command {
	sc := seed.DefaultConfig()
	var (
		domain      string
		recalculate bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a deterministic demo configuration with lists and penalties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := model.ParseDomain(domain)
			if err != nil {
				return err
			}
			sc.Domain = d

			sess, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			res, err := seed.Run(ctx, sess.res.Store, sess.svc.Registry(), sc)
			if err != nil {
				return err
			}
			if recalculate {
				if _, err := sess.svc.RecalculateNow(ctx, res.ConfigurationID); err != nil {
					return err
				}
			}
			out := map[string]any{
				"configuration_id": res.ConfigurationID,
				"items":            len(res.ItemIDs),
				"lists":            len(res.ListIDs),
				"penalties":        len(res.PenaltyIDs),
			}
			if g.json {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration %d: %d items, %d lists, %d penalties\n",
				res.ConfigurationID, len(res.ItemIDs), len(res.ListIDs), len(res.PenaltyIDs))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&domain, "domain", string(sc.Domain), "domain to seed")
	f.StringVar(&sc.Name, "name", sc.Name, "configuration name")
	f.IntVar(&sc.Items, "items", sc.Items, "number of items")
	f.IntVar(&sc.Lists, "lists", sc.Lists, "number of lists")
	f.IntVar(&sc.ListSize, "list-size", sc.ListSize, "items per list")
	f.Uint64Var(&sc.Seed, "seed", sc.Seed, "random seed")
	f.BoolVar(&sc.Primary, "primary", sc.Primary, "mark the configuration primary")
	f.BoolVar(&recalculate, "recalculate", true, "recalculate the new configuration")
	return cmd
}

func newRecalculateCommand(g *globals) *cobra.Command {
	var configurationID int64
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Recalculate one configuration now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			summary, err := sess.svc.RecalculateNow(ctx, configurationID)
			if err != nil {
				return err
			}
			if g.json {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			return writeSummaries(cmd.OutOrStdout(), []ranking.Summary{summary}, nil)
		},
	}
	cmd.Flags().Int64VarP(&configurationID, "configuration", "c", 0, "configuration id")
	_ = cmd.MarkFlagRequired("configuration")
	return cmd
}

func newRecalculateAllCommand(g *globals) *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "recalculate-all",
		Short: "Recalculate every configuration of a domain, or of all domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var d model.Domain
			if domain != "" {
				var err error
				if d, err = model.ParseDomain(domain); err != nil {
					return err
				}
			}
			sess, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			summaries, failures, err := sess.svc.RecalculateAllNow(ctx, d)
			if err != nil {
				return err
			}
			if g.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"summaries": summaries, "failures": failures})
			}
			if err := writeSummaries(cmd.OutOrStdout(), summaries, failures); err != nil {
				return err
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d configurations failed", len(failures), len(failures)+len(summaries))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain to recalculate (default: all)")
	return cmd
}

func newShowCommand(g *globals) *cobra.Command {
	var (
		configurationID int64
		limit           int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the top ranked items of a configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			entries, err := sess.svc.RankedItems(ctx, configurationID, limit)
			if err != nil {
				return err
			}
			if g.json {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			return writeEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().Int64VarP(&configurationID, "configuration", "c", 0, "configuration id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "number of items")
	_ = cmd.MarkFlagRequired("configuration")
	return cmd
}

func newListsCommand(g *globals) *cobra.Command {
	var configurationID int64
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Print the lists of a configuration with their weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			lists, err := sess.svc.RankedLists(ctx, configurationID)
			if err != nil {
				return err
			}
			if g.json {
				return writeJSON(cmd.OutOrStdout(), lists)
			}
			return writeListEntries(cmd.OutOrStdout(), lists)
		},
	}
	cmd.Flags().Int64VarP(&configurationID, "configuration", "c", 0, "configuration id")
	_ = cmd.MarkFlagRequired("configuration")
	return cmd
}
