package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"healthmate/internal/config"
	"healthmate/internal/storage"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete readings older than the retention window",
	Long: `Run one retention sweep against the database and exit.

Readings older than 30 days are deleted.

Examples:
  healthmate purge              # Delete readings older than 30 days
  healthmate purge --dry-run    # Count what would be deleted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		retention := cfg.Retention

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		db, err := storage.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		cutoff := retention.Cutoff(time.Now())
		fmt.Fprintf(out, "Retention: %d days (cutoff %s)\n", config.RetentionDays, cutoff.Format("Jan 2, 2006 3:04 PM"))

		if dryRun {
			n, err := db.CountBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", color.YellowString("DRY RUN MODE - No readings will be deleted"))
			fmt.Fprintf(out, "Would delete %d reading(s)\n", n)
			return nil
		}

		n, err := storage.NewSweeper(db, retention).SweepOnce(ctx)
		if err != nil {
			return fmt.Errorf("retention sweep failed: %w", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(out, "%s Deleted %d reading(s)\n", green("✓"), n)
		return nil
	},
}

func init() {
	purgeCmd.Flags().Bool("dry-run", false, "Count readings without deleting them")
	rootCmd.AddCommand(purgeCmd)
}
