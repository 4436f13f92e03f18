package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"phibot/internal/audit"

	"github.com/spf13/cobra"
)

func alertsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recent identifier warnings from the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			total, err := store.Count(ctx)
			if err != nil {
				return err
			}
			alerts, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tPLATFORM\tCHANNEL\tAUTHOR\tIDS\tMESSAGE TS")
			for _, a := range alerts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					a.CreatedAt.Local().Format(time.DateTime), a.Platform, a.Channel, a.Author, a.Identifiers, a.MessageTS)
			}
			tw.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d alert(s) shown\n", len(alerts), total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of alerts to show")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit rows older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d alert(s) older than %s\n", n, olderThan)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "age threshold")
	cmd.AddCommand(prune)

	return cmd
}

func openAuditStore() (*audit.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Audit.Enabled {
		fmt.Fprintln(os.Stderr, "note: audit.enabled is false; showing whatever was recorded earlier")
	}
	if _, err := os.Stat(cfg.Audit.DBPath); err != nil {
		return nil, fmt.Errorf("no audit database at %s: %w", cfg.Audit.DBPath, err)
	}
	return audit.NewStore(cfg.Audit.DBPath, logger)
}

// auditPing opens the store and counts rows; used by doctor.
func auditPing(dbPath string) (int, error) {
	store, err := audit.NewStore(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Count(ctx)
}
