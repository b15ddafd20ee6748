// Package pipeline runs the hours feed streaming loop and the batch jobs that
// maintain the hours table and the posted aggregates.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// BatchExtractor reads up to batchSize raw hours feed messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer decodes a raw message into an official hours update.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.HoursUpdate, error)
}

// BatchLoader applies decoded hours updates to the versioned table.
type BatchLoader interface {
	LoadBatch(ctx context.Context, updates []domain.HoursUpdate) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates the extract-transform-load loop for the hours feed.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has applied at least one batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not applied any hours yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled. Failed extracts
// and failed saves back off exponentially from 200ms to 5s.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// transformAndLoad decodes each message, applies the decoded updates in one
// save and commits offsets only after that save. Undecodable messages are
// committed and skipped. Returns the number of applied updates and false if
// the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawMessage, backoff *time.Duration) (int, bool) {
	updates := make([]domain.HoursUpdate, 0, len(rawBatch))
	decoded := make([]domain.RawMessage, 0, len(rawBatch))

	for _, raw := range rawBatch {
		u, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("hours message unparseable, skipping",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ParseErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		updates = append(updates, u)
		decoded = append(decoded, raw)
	}

	if len(updates) == 0 {
		return 0, true
	}

	if err := p.loader.LoadBatch(ctx, updates); err != nil {
		p.logger.Error("apply hours batch failed", "error", err, "batch_size", len(updates))
		return 0, p.backoffOrStop(ctx, backoff)
	}

	for _, raw := range decoded {
		p.commitOffset(ctx, raw)
	}

	return len(updates), true
}

// backoffOrStop sleeps with the current backoff and advances it. Returns false
// if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
