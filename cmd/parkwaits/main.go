// Command parkwaits maintains the versioned park-hours table and the posted
// wait aggregates, and serves lookups over HTTP.
//
// Usage:
//
//	parkwaits sync-hours --file data/feeds/park_hours.csv
//	parkwaits impute --horizon 365
//	parkwaits build-aggregates
//	parkwaits report
//	parkwaits validate
//	parkwaits serve
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/config"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/entity"
	"github.com/couchcryptid/park-waits-etl/internal/observability"
	"github.com/couchcryptid/park-waits-etl/internal/parks"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand shares. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "parkwaits",
		Short:         "Park hours versioning and posted wait aggregation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg).With(
				"command", cmd.Name(),
				"run_id", uuid.NewString(),
			)
			a.metrics = observability.NewMetrics()
			return nil
		},
	}

	root.AddCommand(
		newSyncHoursCmd(a),
		newImputeCmd(a),
		newBuildAggregatesCmd(a),
		newReportCmd(a),
		newValidateCmd(a),
		newServeCmd(a),
	)
	return root
}

// fail logs a fatal command error once and returns it for cobra's exit code.
func (a *app) fail(msg string, err error) error {
	a.logger.Error(msg, "error", err)
	return fmt.Errorf("%s: %w", msg, err)
}

func (a *app) registry() (*parks.Registry, error) {
	return parks.Load(a.cfg.ParksFile)
}

// classifier loads the cohort table. A missing table yields a nil classifier
// and a warning; callers degrade.
func (a *app) classifier() (cohort.Classifier, error) {
	t, err := cohort.LoadCSV(a.cfg.CohortTablePath, a.logger)
	if errors.Is(err, domain.ErrMissingCohortTable) {
		a.logger.Warn("cohort table missing, continuing degraded", "path", a.cfg.CohortTablePath)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// parkLocator resolves entities through the entity index when present and
// falls back to registry prefixes; timezones always come from the registry.
type parkLocator struct {
	resolver *entity.Resolver
	registry *parks.Registry
}

func (l parkLocator) ParkForEntity(code string) (string, bool) {
	return l.resolver.ParkForEntity(code)
}

func (l parkLocator) Location(park string) *time.Location {
	return l.registry.Location(park)
}

// locator builds the entity -> park resolver. The returned close func is
// always non-nil.
func (a *app) locator(ctx context.Context, reg *parks.Registry) (parkLocator, func(), error) {
	closefn := func() {}
	var store entity.Store
	if _, err := os.Stat(a.cfg.EntityDBPath); err == nil {
		ix, err := entity.Open(ctx, a.cfg.EntityDBPath)
		if err != nil {
			return parkLocator{}, closefn, err
		}
		store = entity.NewCache(ix, a.cfg.EntityCacheSize).Instrument(a.metrics.EntityCache)
		closefn = func() {
			if err := ix.Close(); err != nil {
				a.logger.Warn("close entity index", "error", err)
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return parkLocator{}, closefn, fmt.Errorf("stat entity index: %w", err)
	} else {
		a.logger.Info("entity index absent, resolving parks by prefix", "path", a.cfg.EntityDBPath)
	}
	return parkLocator{
		resolver: entity.NewResolver(store, reg, a.logger),
		registry: reg,
	}, closefn, nil
}
