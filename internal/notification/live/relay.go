package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clinicbook_backend/platform/backoff"
	"clinicbook_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel is the Redis pub/sub channel shared by all API replicas.
const DefaultRelayChannel = "clinicbook:live"

// relayRetryPolicy spaces resubscribe attempts. MaxAttempts is unused; Run
// retries until its context ends.
var relayRetryPolicy = backoff.Policy{
	BaseDelay:  time.Second,
	Multiplier: 2,
	MaxDelay:   30 * time.Second,
}

type relayMessage struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay publishes live events through Redis so that subscribers
// connected to any API replica receive them. Run feeds received messages into
// the local hub.
type RedisRelay struct {
	client  redis.UniversalClient
	hub     *Hub
	channel string
	log     *logger.Logger
	sleeper backoff.Sleeper
}

// NewRedisRelay creates a relay. hub may be nil for processes that only
// publish and never call Run.
func NewRedisRelay(client redis.UniversalClient, hub *Hub, channel string, log *logger.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{client: client, hub: hub, channel: channel, log: log, sleeper: backoff.TimerSleeper{}}
}

// Publish sends payload for topic to every replica. payload must be JSON.
func (r *RedisRelay) Publish(ctx context.Context, topic string, payload []byte) error {
	data, err := json.Marshal(relayMessage{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish relay message: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel until ctx is done. A failed or lost
// subscription is retried on the relay backoff schedule, so Run only returns
// an error when the relay has no hub.
func (r *RedisRelay) Run(ctx context.Context) error {
	if r.hub == nil {
		return fmt.Errorf("relay has no hub to feed")
	}
	failures := 0
	for ctx.Err() == nil {
		subscribed, err := r.session(ctx)
		if ctx.Err() != nil {
			break
		}
		if subscribed {
			failures = 0
		}
		failures++
		wait := relayRetryPolicy.DelayFor(failures)
		if err != nil {
			r.log.Warn("live relay subscription failed; retrying", "channel", r.channel, "error", err, "retryIn", wait)
		} else {
			r.log.Warn("live relay subscription closed; resubscribing", "channel", r.channel, "retryIn", wait)
		}
		if err := r.sleeper.Sleep(ctx, wait); err != nil {
			break
		}
	}
	return nil
}

// session holds one subscription until it ends. subscribed reports whether the
// channel was joined at all.
func (r *RedisRelay) session(ctx context.Context) (subscribed bool, err error) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe to relay channel: %w", err)
	}
	r.log.Info("live relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-ch:
			if !ok {
				return true, nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.log.Warn("dropping malformed relay message", "error", err)
				continue
			}
			_ = r.hub.Publish(ctx, m.Topic, m.Payload)
		}
	}
}
