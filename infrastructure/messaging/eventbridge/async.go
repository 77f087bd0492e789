package eventbridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sketchroom-backend/application/ports"
	"sketchroom-backend/domain/events"
	pkgerrors "sketchroom-backend/pkg/errors"
)

// PublishRecorder counts events by outcome.
type PublishRecorder interface {
	RecordPublish(status string, n int)
}

type noopRecorder struct{}

func (noopRecorder) RecordPublish(string, int) {}

// AsyncConfig tunes the background publisher.
type AsyncConfig struct {
	QueueSize      int
	BatchSize      int
	FlushInterval  time.Duration
	PublishTimeout time.Duration
}

// AsyncPublisher queues events and hands them to next from a single worker.
// Publish never blocks; when the queue is full the event is dropped and
// counted.
type AsyncPublisher struct {
	next     ports.EventPublisher
	queue    chan events.DomainEvent
	cfg      AsyncConfig
	recorder PublishRecorder
	logger   *zap.Logger
}

var _ ports.EventPublisher = (*AsyncPublisher)(nil)

// NewAsyncPublisher wraps next. recorder may be nil.
func NewAsyncPublisher(next ports.EventPublisher, cfg AsyncConfig, recorder PublishRecorder, logger *zap.Logger) *AsyncPublisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxEntriesPerCall {
		cfg.BatchSize = MaxEntriesPerCall
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncPublisher{
		next:     next,
		queue:    make(chan events.DomainEvent, cfg.QueueSize),
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

// Publish enqueues event.
func (p *AsyncPublisher) Publish(_ context.Context, event events.DomainEvent) error {
	select {
	case p.queue <- event:
		return nil
	default:
		p.recorder.RecordPublish("dropped", 1)
		return pkgerrors.NewUnavailableError("event queue")
	}
}

// PublishBatch enqueues every event, dropping those that do not fit.
func (p *AsyncPublisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	var firstErr error
	for _, event := range domainEvents {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pending returns the number of queued events.
func (p *AsyncPublisher) Pending() int {
	return len(p.queue)
}

// Run drains the queue until ctx is done, then flushes what is left.
func (p *AsyncPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]events.DomainEvent, 0, p.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-p.queue:
					batch = append(batch, event)
					if len(batch) == p.cfg.BatchSize {
						batch = p.flush(batch)
					}
				default:
					p.flush(batch)
					p.logger.Info("Event publisher stopped")
					return nil
				}
			}

		case event := <-p.queue:
			batch = append(batch, event)
			if len(batch) == p.cfg.BatchSize {
				batch = p.flush(batch)
			}

		case <-ticker.C:
			batch = p.flush(batch)
		}
	}
}

// flush publishes batch with a fresh timeout and returns it emptied.
func (p *AsyncPublisher) flush(batch []events.DomainEvent) []events.DomainEvent {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()

	if err := p.next.PublishBatch(ctx, batch); err != nil {
		p.recorder.RecordPublish("failed", len(batch))
		p.logger.Warn("Failed to publish events",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	} else {
		p.recorder.RecordPublish("published", len(batch))
	}
	clear(batch)
	return batch[:0]
}
