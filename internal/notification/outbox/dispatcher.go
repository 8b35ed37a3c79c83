package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicbook_backend/internal/notification/live"
	"clinicbook_backend/platform/backoff"
	"clinicbook_backend/platform/events"
	"clinicbook_backend/platform/logger"

	"github.com/google/uuid"
)

// LiveSink pushes a serialized envelope to live subscribers of topic.
type LiveSink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// BrokerSink hands an envelope to the message broker.
type BrokerSink interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Store is the persistence the dispatcher needs. *Repository implements it.
type Store interface {
	ClaimDue(ctx context.Context, limit int, staleAfter time.Duration) ([]Record, error)
	MarkSinkDelivered(ctx context.Context, id uuid.UUID, sink Sink) error
	Complete(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error
	Fail(ctx context.Context, id uuid.UUID, lastError string) error
}

type DispatcherOptions struct {
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
	// StaleAfter is how long a row may stay in processing before another
	// dispatcher pass reclaims it.
	StaleAfter time.Duration
	Retry      backoff.Policy
	Now        func() time.Time
}

// DefaultRetryPolicy spaces redelivery of an outbox row: 2s doubling up to 5m.
var DefaultRetryPolicy = backoff.Policy{
	MaxAttempts: 10,
	BaseDelay:   2 * time.Second,
	Multiplier:  2,
	MaxDelay:    5 * time.Minute,
}

// Dispatcher drains committed outbox rows to the live channel and the broker.
// Each sink is tracked separately so a row whose live push succeeded is not
// pushed again when only the broker failed.
type Dispatcher struct {
	store  Store
	live   LiveSink
	broker BrokerSink
	log    *logger.Logger
	opts   DispatcherOptions
	nudge  chan struct{}
}

func NewDispatcher(store Store, liveSink LiveSink, broker BrokerSink, log *logger.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Minute
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		store:  store,
		live:   liveSink,
		broker: broker,
		log:    log,
		opts:   opts,
		nudge:  make(chan struct{}, 1),
	}
}

// Notify asks the dispatcher to drain now instead of waiting for the next
// poll. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Run drains until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	d.log.Info("outbox dispatcher started", "interval", d.opts.PollInterval.String(), "batch", d.opts.BatchSize)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-d.nudge:
		}
		if _, err := d.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("outbox drain failed", "error", err)
		}
	}
}

// DrainOnce claims one batch and delivers it. It returns the number of rows
// handled.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	records, err := d.store.ClaimDue(ctx, d.opts.BatchSize, d.opts.StaleAfter)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := d.deliver(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (d *Dispatcher) deliver(ctx context.Context, rec Record) error {
	env, err := rec.Envelope()
	if err != nil {
		return d.store.Fail(ctx, rec.ID, err.Error())
	}

	var failures []error
	if !rec.Delivered(SinkLive) {
		if err := d.sendLive(ctx, rec); err != nil {
			failures = append(failures, fmt.Errorf("live: %w", err))
		} else if err := d.store.MarkSinkDelivered(ctx, rec.ID, SinkLive); err != nil {
			return err
		}
	}
	if !rec.Delivered(SinkBroker) {
		if err := d.sendBroker(ctx, env, rec.Attempts); err != nil {
			failures = append(failures, fmt.Errorf("broker: %w", err))
		} else if err := d.store.MarkSinkDelivered(ctx, rec.ID, SinkBroker); err != nil {
			return err
		}
	}

	if len(failures) == 0 {
		return d.store.Complete(ctx, rec.ID)
	}

	lastErr := errors.Join(failures...).Error()
	if rec.Attempts >= d.opts.MaxAttempts {
		d.log.Error("outbox event gave up", "event_id", rec.ID.String(), "event_type", rec.EventType, "attempts", rec.Attempts, "error", lastErr)
		return d.store.Fail(ctx, rec.ID, lastErr)
	}
	next := d.opts.Now().Add(d.opts.Retry.DelayFor(rec.Attempts))
	return d.store.Reschedule(ctx, rec.ID, next, lastErr)
}

func (d *Dispatcher) sendLive(ctx context.Context, rec Record) error {
	if d.live == nil {
		return nil
	}
	var err error
	for _, topic := range live.TopicsFor(rec.PatientID) {
		if err = d.live.Publish(ctx, topic, rec.Payload); err != nil {
			break
		}
	}
	d.log.OutboxDelivery(rec.ID.String(), rec.EventType, string(SinkLive), rec.Attempts, err)
	return err
}

func (d *Dispatcher) sendBroker(ctx context.Context, env events.Envelope, attempt int) error {
	if d.broker == nil {
		return nil
	}
	err := d.broker.Publish(ctx, env)
	d.log.OutboxDelivery(env.ID.String(), env.Type, string(SinkBroker), attempt, err)
	return err
}
