package main

import (
	"context"
	"errors"
	"net/http"

	httpadapter "github.com/couchcryptid/park-waits-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/park-waits-etl/internal/adapter/kafka"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/pipeline"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"
)

// alwaysReady reports ready once the artifacts are loaded, which happens
// before the server starts.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume the hours feed and serve hours and posted wait lookups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.logger

			repo := hours.NewRepository(a.cfg.HoursTablePath, logger)

			reg, err := a.registry()
			if err != nil {
				return a.fail("load park registry", err)
			}
			classifier, err := a.classifier()
			if err != nil {
				return a.fail("load cohort table", err)
			}
			loc, closeIndex, err := a.locator(ctx, reg)
			if err != nil {
				return a.fail("open entity index", err)
			}
			defer closeIndex()

			snap, stats, err := posted.LoadSnapshot(a.cfg.AggregatesPath, logger)
			if err != nil {
				return a.fail("load posted aggregates", err)
			}
			table := posted.NewSnapshotTable(snap, classifier, loc)
			logger.Info("posted aggregates loaded", "rows", table.Len(), "dropped", stats.Dropped)

			var (
				ready     sharedobs.ReadinessChecker = alwaysReady{}
				publisher pipeline.ChangePublisher
				reader    *kafkaadapter.Reader
				writer    *kafkaadapter.Writer
			)
			if a.cfg.KafkaEnabled {
				reader = kafkaadapter.NewReader(a.cfg, logger)
				writer = kafkaadapter.NewWriter(a.cfg, logger)
				publisher = writer
				logger.Info("kafka hours feed enabled", "topic", a.cfg.KafkaHoursTopic, "changes_topic", a.cfg.KafkaChangesTopic)
			} else {
				logger.Info("kafka hours feed disabled")
			}

			hoursSync := pipeline.NewHoursSync(repo, publisher, a.metrics, logger)
			if err := hoursSync.Refresh(); err != nil {
				return a.fail("load hours table", err)
			}
			if publisher != nil {
				if err := hoursSync.FlushChanges(ctx); err != nil {
					logger.Warn("staged hours changes not yet published", "error", err)
				}
			}

			var p *pipeline.Pipeline
			if reader != nil {
				p = pipeline.New(reader, pipeline.NewTransformer(), hoursSync, logger, a.metrics, a.cfg.BatchSize)
				ready = p
			}

			srv := httpadapter.NewServer(a.cfg.HTTPAddr, ready, logger,
				httpadapter.WithHours(hoursSync),
				httpadapter.WithPosted(table, a.metrics),
			)

			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()
			logger.Info("http server listening", "addr", a.cfg.HTTPAddr)

			if p != nil {
				go func() {
					if err := p.Run(ctx); err != nil {
						logger.Error("pipeline error", "error", err)
					}
				}()
			}

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			if reader != nil {
				if err := reader.Close(); err != nil {
					logger.Error("kafka reader close error", "error", err)
				}
			}
			if writer != nil {
				if err := writer.Close(); err != nil {
					logger.Error("kafka writer close error", "error", err)
				}
			}

			logger.Info("shutdown complete")
			return nil
		},
	}
}
