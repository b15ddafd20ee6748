package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/park-waits-etl/internal/accuracy"
	"github.com/couchcryptid/park-waits-etl/internal/adapter/csvfeed"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
	"github.com/spf13/cobra"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		outDir     string
		source     string
		skipPosted bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Score predicted hours and posted waits against what actually happened",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if outDir == "" {
				outDir = filepath.Join(a.cfg.ReportsDir, domain.Now().Format(domain.DateLayout))
			}
			if source == "" {
				source = a.cfg.ObservationsDir
			}

			classifier, err := a.classifier()
			if err != nil {
				return a.fail("load cohort table", err)
			}
			table, err := hours.NewRepository(a.cfg.HoursTablePath, a.logger).Load()
			if err != nil {
				return a.fail("load hours table", err)
			}
			hrs := accuracy.CompareHours(table, classifier)

			var (
				pst   []accuracy.PostedComparison
				stats accuracy.PostedStats
			)
			if !skipPosted {
				reg, err := a.registry()
				if err != nil {
					return a.fail("load park registry", err)
				}
				loc, closeIndex, err := a.locator(ctx, reg)
				if err != nil {
					return a.fail("open entity index", err)
				}
				defer closeIndex()

				snap, _, err := posted.LoadSnapshot(a.cfg.AggregatesPath, a.logger)
				if err != nil {
					return a.fail("load posted aggregates", err)
				}
				agg := posted.NewSnapshotTable(snap, classifier, loc)
				pst, stats, err = accuracy.ComparePosted(ctx, agg, csvfeed.NewObservations(source, loc, a.logger), loc, classifier)
				if err != nil {
					return a.fail("score posted waits", err)
				}
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return a.fail("create report dir", err)
			}
			if err := accuracy.WriteHoursRows(filepath.Join(outDir, "hours_accuracy.csv"), hrs); err != nil {
				return a.fail("write hours rows", err)
			}
			if !skipPosted {
				if err := accuracy.WritePostedRows(filepath.Join(outDir, "posted_accuracy.csv"), pst); err != nil {
					return a.fail("write posted rows", err)
				}
			}

			summary := accuracy.Summarize(hrs, pst, stats)
			if err := accuracy.WriteSummary(cmd.OutOrStdout(), summary); err != nil {
				return a.fail("write summary", err)
			}
			a.logger.Info("accuracy report written",
				"dir", outDir,
				"hours_scored", len(hrs),
				"posted_scored", stats.Scored,
				"posted_unpredicted", stats.Unpredicted,
			)
			fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default REPORTS_DIR/<today>)")
	cmd.Flags().StringVar(&source, "source", "", "observation file or directory (default OBSERVATIONS_DIR)")
	cmd.Flags().BoolVar(&skipPosted, "hours-only", false, "skip posted wait scoring")
	return cmd
}
