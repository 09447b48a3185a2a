package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/infrastructure/config"
	"github.com/adminkit/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrOutboxProcessorRunning is returned by Start until Stop is called
var ErrOutboxProcessorRunning = errors.New("outbox processor already started")

// OutboxProcessorConfig tunes the relay loop
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries overrides the retry limit stored on each entry when positive
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig polls every 5s and keeps sent entries a week
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessorConfigFrom builds the processor configuration from the
// event settings, keeping defaults for unset values
func OutboxProcessorConfigFrom(cfg config.EventConfig) OutboxProcessorConfig {
	out := DefaultOutboxProcessorConfig()
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	if cfg.PollInterval > 0 {
		out.PollInterval = cfg.PollInterval
	}
	if cfg.MaxRetries > 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	out.CleanupEnabled = cfg.CleanupEnabled
	if cfg.CleanupRetention > 0 {
		out.CleanupRetention = cfg.CleanupRetention
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = cfg.CleanupInterval
	}
	return out
}

// OutboxMetrics receives relay outcomes
type OutboxMetrics interface {
	RecordDelivered(ctx context.Context, eventType string)
	RecordFailed(ctx context.Context, eventType string, dead bool)
	RecordBatch(ctx context.Context, claimed int, duration time.Duration)
}

type nopOutboxMetrics struct{}

func (nopOutboxMetrics) RecordDelivered(context.Context, string)         {}
func (nopOutboxMetrics) RecordFailed(context.Context, string, bool)      {}
func (nopOutboxMetrics) RecordBatch(context.Context, int, time.Duration) {}

// OutboxProcessorOption configures an OutboxProcessor
type OutboxProcessorOption func(*OutboxProcessor)

// WithOutboxMetrics reports relay outcomes to m
func WithOutboxMetrics(m OutboxMetrics) OutboxProcessorOption {
	return func(p *OutboxProcessor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// OutboxProcessor relays committed events from the outbox to the event bus.
// Delivery is at least once: an entry is marked sent only after every
// handler succeeded, so consumers should be idempotent.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	metrics    OutboxMetrics
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
	opts ...OutboxProcessorOption,
) *OutboxProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		metrics:    nopOutboxMetrics{},
		logger:     logger.Named("outbox_processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the polling loop and, when enabled, the cleanup loop.
// They run until Stop or until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrOutboxProcessorRunning
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Go(func() {
		p.every(ctx, p.config.PollInterval, func(batchCtx context.Context) {
			if _, err := p.ProcessOnce(batchCtx); err != nil {
				p.logger.Error("failed to process outbox batch", zap.Error(err))
			}
		})
	})
	if p.config.CleanupEnabled {
		p.wg.Go(func() {
			p.every(ctx, p.config.CleanupInterval, func(batchCtx context.Context) {
				p.Cleanup(batchCtx)
			})
		})
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// every calls fn each interval, hourly when unset, until ctx is done. fn
// gets a context that outlives the cancellation, so a batch in flight when
// Stop is called finishes and records its outcome.
func (p *OutboxProcessor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(context.WithoutCancel(ctx))
		}
	}
}

// Stop cancels the loops and waits for the current batch, or until ctx
// expires
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessOnce relays one batch of pending entries, then one batch of
// failed entries whose retry is due. It returns how many were delivered.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		return 0, err
	}
	delivered := p.processEntries(ctx, pending)

	due, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		return delivered, err
	}
	return delivered + p.processEntries(ctx, due), nil
}

func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) int {
	if len(entries) == 0 {
		return 0
	}
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "outbox.process_batch",
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(entries)),
	)
	defer span.End()

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		telemetry.RecordError(span, err)
		p.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, entry := range claimed {
		if p.processEntry(ctx, entry) {
			delivered++
		}
	}
	p.metrics.RecordBatch(ctx, len(claimed), time.Since(start))
	return delivered
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	ctx, span := telemetry.StartSpan(ctx, "outbox.deliver",
		telemetry.WithSpanKind(trace.SpanKindProducer),
		telemetry.WithAttribute(telemetry.SpanAttrEventID, entry.EventID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrEventType, entry.EventType),
		telemetry.WithAttribute(telemetry.SpanAttrAggregateType, entry.AggregateType),
		telemetry.WithAttribute(telemetry.SpanAttrAggregateID, entry.AggregateID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrRetryCount, entry.RetryCount),
	)
	defer span.End()

	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	if p.config.MaxRetries > 0 {
		entry.MaxRetries = p.config.MaxRetries
	}

	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		log.Error("failed to deserialize event", zap.Error(err))
		telemetry.RecordError(span, err)
		p.fail(ctx, log, entry, err)
		return false
	}

	if err := p.publisher.Publish(ctx, event); err != nil {
		log.Error("failed to publish event", zap.Error(err))
		telemetry.RecordError(span, err)
		p.fail(ctx, log, entry, err)
		return false
	}

	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		// the entry stays PROCESSING and is not picked up again
		log.Error("failed to mark entry as sent", zap.Error(err))
		telemetry.RecordError(span, err)
		return false
	}
	p.metrics.RecordDelivered(ctx, entry.EventType)
	log.Debug("event processed successfully")
	return true
}

func (p *OutboxProcessor) fail(ctx context.Context, log *zap.Logger, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error())
	if entry.IsDead() {
		log.Warn("event moved to dead letter queue",
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	p.metrics.RecordFailed(ctx, entry.EventType, entry.IsDead())
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("failed to update entry", zap.Error(err))
	}
}

// Cleanup deletes sent entries older than CleanupRetention and returns
// how many went
func (p *OutboxProcessor) Cleanup(ctx context.Context) int64 {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted
}
