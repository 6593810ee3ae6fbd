// Package relay publishes custody events to an AMQP exchange.
//
// The relay is a custody.Sink with publisher confirms: each publish waits
// synchronously for the broker to ack before returning. Delivery remains
// best-effort from the vault's point of view; the vault logs and drops any
// error the relay returns, so a broken channel never affects custody state.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-custody/custody"
)

const (
	// DefaultConfirmTimeout is the default wait for broker confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	// confirmBuffer sizes the confirmation channel. Publishes are
	// serialized, so one pending confirmation is the steady state; the
	// headroom keeps the broker's notifier from blocking once the relay
	// has stopped reading. A confirm that lands after the deadline is
	// never consumed: the relay invalidates itself instead.
	confirmBuffer = 16

	// routingKeyPrefix prefixes all custody event routing keys.
	routingKeyPrefix = "custody."
)

var (
	// ErrNilChannel is returned when no AMQP channel is provided.
	ErrNilChannel = errors.New("amqp channel is nil")
	// ErrConfirmModeUnavailable is returned when the channel rejects confirm mode.
	ErrConfirmModeUnavailable = errors.New("channel does not support confirm mode")
	// ErrPublishNacked is returned when the broker refuses the message.
	ErrPublishNacked = errors.New("message was nacked by broker")
	// ErrConfirmTimeout is returned when the broker confirmation does not arrive in time.
	ErrConfirmTimeout = errors.New("confirmation timed out")
	// ErrRelayClosed is returned when publishing on a closed relay.
	ErrRelayClosed = errors.New("relay is closed")
)

// Channel is the subset of amqp091 channel operations the relay needs.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// Relay publishes custody events to an AMQP exchange with confirms enabled.
type Relay struct {
	ch             Channel
	confirms       chan amqp.Confirmation
	exchange       string
	confirmTimeout time.Duration
	logger         *zap.Logger

	publishMu sync.Mutex
	mu        sync.Mutex
	closed    bool
}

// Compile-time assertion: *Relay implements custody.Sink.
var _ custody.Sink = (*Relay)(nil)

// Option configures a Relay.
type Option func(r *Relay)

// WithConfirmTimeout sets the broker confirmation wait. Non-positive values
// are ignored.
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(r *Relay) {
		if timeout > 0 {
			r.confirmTimeout = timeout
		}
	}
}

// WithLogger sets a structured logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a relay on top of a dedicated AMQP channel and puts the
// channel into confirm mode. The channel must not be shared with other
// publishers: confirm ordering is per channel.
func New(ch Channel, exchange string, opts ...Option) (*Relay, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmModeUnavailable, err)
	}

	confirms := make(chan amqp.Confirmation, confirmBuffer)
	ch.NotifyPublish(confirms)

	r := &Relay{
		ch:             ch,
		confirms:       confirms,
		exchange:       exchange,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         zap.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r, nil
}

// Publish implements custody.Sink. The event is serialized as JSON and
// published under a per-type routing key; the call returns once the broker
// has confirmed (or refused) the message.
//
// Calls are serialized per relay instance to preserve confirm ordering
// without delivery-tag correlation state.
func (r *Relay) Publish(ctx context.Context, event custody.Event) error {
	if r == nil {
		return ErrNilChannel
	}

	if ctx == nil {
		ctx = context.Background()
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()

		return ErrRelayClosed
	}
	r.mu.Unlock()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID.String(),
		Timestamp:   event.OccurredAt,
		Type:        string(event.Type),
		Body:        body,
	}

	if err := r.ch.PublishWithContext(ctx, r.exchange, RoutingKey(event.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	err = r.waitForConfirm(ctx)
	if err != nil && isConfirmStreamCorrupted(err) {
		// A confirmation for this publish may still arrive and the next
		// waitForConfirm call would consume it as its own. Invalidate the
		// relay so the confirm stream cannot desynchronize.
		r.invalidate()
	}

	return err
}

// isConfirmStreamCorrupted reports whether the error indicates a pending
// confirmation may still be queued, which would desynchronize the next
// waitForConfirm call.
func isConfirmStreamCorrupted(err error) bool {
	return errors.Is(err, ErrConfirmTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// invalidate marks the relay closed and closes the underlying channel so
// no later publish can read a stale confirmation.
//
// Must be called while holding publishMu.
func (r *Relay) invalidate() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()

		return
	}

	r.closed = true
	r.mu.Unlock()

	r.logger.Warn("custody: relay invalidated, confirm stream out of sync")

	if err := r.ch.Close(); err != nil {
		r.logger.Warn("custody: closing invalidated relay channel", zap.Error(err))
	}
}

// Close closes the underlying channel. Further publishes fail with
// ErrRelayClosed; closing twice is not an error.
func (r *Relay) Close() error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()

		return nil
	}

	r.closed = true
	r.mu.Unlock()

	if err := r.ch.Close(); err != nil {
		return fmt.Errorf("closing relay channel: %w", err)
	}

	return nil
}

// RoutingKey returns the AMQP routing key used for an event type, e.g.
// "custody.deposit_received".
func RoutingKey(eventType custody.EventType) string {
	return routingKeyPrefix + strings.ToLower(string(eventType))
}

func (r *Relay) waitForConfirm(ctx context.Context) error {
	timeout := time.NewTimer(r.confirmTimeout)
	defer timeout.Stop()

	select {
	case confirmed, ok := <-r.confirms:
		if !ok {
			return ErrRelayClosed
		}

		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}

		return nil

	case <-timeout.C:
		r.logger.Warn("custody: relay confirmation timed out",
			zap.Duration("timeout", r.confirmTimeout))

		return ErrConfirmTimeout

	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}
}
