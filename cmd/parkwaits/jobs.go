package main

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/park-waits-etl/internal/adapter/csvfeed"
	kafkaadapter "github.com/couchcryptid/park-waits-etl/internal/adapter/kafka"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func newSyncHoursCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sync-hours",
		Short: "Record official hours from a feed export as versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = a.cfg.HoursFeedPath
			}
			updates, err := csvfeed.ReadHoursFile(file, a.logger)
			if err != nil {
				return a.fail("read hours feed", err)
			}

			var publisher pipeline.ChangePublisher
			if a.cfg.KafkaEnabled {
				w := kafkaadapter.NewWriter(a.cfg, a.logger)
				defer func() {
					if err := w.Close(); err != nil {
						a.logger.Error("kafka writer close error", "error", err)
					}
				}()
				publisher = w
			}

			repo := hours.NewRepository(a.cfg.HoursTablePath, a.logger)
			res, err := pipeline.NewHoursSync(repo, publisher, a.metrics, a.logger).Apply(cmd.Context(), updates)
			if err != nil {
				return a.fail("sync hours", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created=%d changed=%d unchanged=%d failed=%d\n",
				res.Created, res.Changed, res.Unchanged, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "hours feed CSV (default HOURS_FEED_PATH)")
	return cmd
}

func newImputeCmd(a *app) *cobra.Command {
	var (
		from     string
		horizon  int
		parkList []string
	)
	cmd := &cobra.Command{
		Use:   "impute",
		Short: "Write predicted hours for future park days from donor days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := pipeline.ImputeOptions{HorizonDays: horizon, Parks: parkList}
			if opts.HorizonDays <= 0 {
				opts.HorizonDays = a.cfg.ImputeHorizonDays
			}
			if from != "" {
				d, err := domain.ParseDate(from)
				if err != nil {
					return a.fail("parse --from", err)
				}
				opts.From = d
			}
			if len(opts.Parks) == 0 {
				reg, err := a.registry()
				if err != nil {
					return a.fail("load park registry", err)
				}
				opts.Parks = reg.Codes()
			}
			for i, p := range opts.Parks {
				opts.Parks[i] = strings.ToUpper(strings.TrimSpace(p))
			}

			repo := hours.NewRepository(a.cfg.HoursTablePath, a.logger)
			imp := pipeline.NewImputer(repo, a.cfg.CohortTablePath, a.metrics, a.logger)
			res, err := imp.Run(cmd.Context(), opts)
			if err != nil {
				return a.fail("impute hours", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "predicted=%d skipped=%d no_donor=%d failed=%d degraded=%t\n",
				res.Predicted, res.Skipped, res.NoDonor, res.Failed, res.Degraded)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first target date (default today)")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "days to fill (default IMPUTE_HORIZON_DAYS)")
	cmd.Flags().StringSliceVar(&parkList, "park", nil, "park codes (default every registered park)")
	return cmd
}

func newBuildAggregatesCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "build-aggregates",
		Short: "Rebuild the posted wait aggregate table from observations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if source == "" {
				source = a.cfg.ObservationsDir
			}
			reg, err := a.registry()
			if err != nil {
				return a.fail("load park registry", err)
			}
			loc, closeIndex, err := a.locator(cmd.Context(), reg)
			if err != nil {
				return a.fail("open entity index", err)
			}
			defer closeIndex()

			obs := csvfeed.NewObservations(source, loc, a.logger)
			job := pipeline.NewAggregateRebuild(obs, loc, a.cfg.CohortTablePath, a.cfg.AggregatesPath,
				a.cfg.AggregateLookbackDays, a.metrics, a.logger)
			stats, err := job.Run(cmd.Context())
			if err != nil {
				return a.fail("build aggregates", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "groups=%d observations=%d posted=%d out_of_range=%d unknown_parks=%d skipped_rows=%d\n",
				stats.Groups, stats.Seen, stats.Posted, stats.OutOfRange, stats.UnknownParks, obs.Stats().Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "observation file or directory (default OBSERVATIONS_DIR)")
	return cmd
}
