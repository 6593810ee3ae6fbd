package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/lib-custody/custody"
)

// fakeChannel is an in-memory Channel that confirms every publish according
// to its configuration.
type fakeChannel struct {
	mu         sync.Mutex
	confirms   chan amqp.Confirmation
	published  []publishedMsg
	confirmErr error
	publishErr error
	ack        bool
	silent     bool // swallow confirmations to force a timeout
	closed     bool
	tag        uint64
}

type publishedMsg struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{ack: true}
}

func (f *fakeChannel) Confirm(_ bool) error {
	return f.confirmErr
}

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.confirms = confirm

	return confirm
}

func (f *fakeChannel) PublishWithContext(
	_ context.Context,
	exchange, key string,
	_, _ bool,
	msg amqp.Publishing,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}

	f.published = append(f.published, publishedMsg{exchange: exchange, routingKey: key, msg: msg})
	f.tag++

	if !f.silent {
		f.confirms <- amqp.Confirmation{DeliveryTag: f.tag, Ack: f.ack}
	}

	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func testEvent() custody.Event {
	amount := decimal.NewFromInt(5)

	return custody.Event{
		ID:         uuid.New(),
		Type:       custody.EventDepositReceived,
		OccurredAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Sender:     "anyone",
		Amount:     &amount,
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil channel rejected", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil, "custody.events")
		require.ErrorIs(t, err, ErrNilChannel)
	})

	t.Run("confirm mode unavailable", func(t *testing.T) {
		t.Parallel()

		ch := newFakeChannel()
		ch.confirmErr = errors.New("basic.confirm not allowed")

		_, err := New(ch, "custody.events")
		require.ErrorIs(t, err, ErrConfirmModeUnavailable)
	})
}

func TestRelay_PublishConfirmed(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()

	r, err := New(ch, "custody.events")
	require.NoError(t, err)

	event := testEvent()
	require.NoError(t, r.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "custody.events", got.exchange)
	assert.Equal(t, "custody.deposit_received", got.routingKey)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, event.ID.String(), got.msg.MessageId)
	assert.Equal(t, string(custody.EventDepositReceived), got.msg.Type)

	var decoded custody.Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, custody.Identity("anyone"), decoded.Sender)
	require.NotNil(t, decoded.Amount)
	assert.True(t, decoded.Amount.Equal(decimal.NewFromInt(5)))
}

func TestRelay_PublishNacked(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.ack = false

	r, err := New(ch, "custody.events")
	require.NoError(t, err)

	err = r.Publish(context.Background(), testEvent())
	require.ErrorIs(t, err, ErrPublishNacked)
}

func TestRelay_ConfirmTimeout(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.silent = true

	r, err := New(ch, "custody.events", WithConfirmTimeout(20*time.Millisecond))
	require.NoError(t, err)

	err = r.Publish(context.Background(), testEvent())
	require.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestRelay_TimeoutInvalidatesConfirmStream(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ch := newFakeChannel()
	ch.silent = true

	r, err := New(ch, "custody.events", WithConfirmTimeout(20*time.Millisecond))
	require.NoError(t, err)

	err = r.Publish(ctx, testEvent())
	require.ErrorIs(t, err, ErrConfirmTimeout)
	assert.True(t, ch.closed, "the channel is closed so the stream cannot be reused")

	// The broker's confirmation for the first publish arrives after the
	// deadline.
	ch.confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}

	// A later publish must not adopt the stale confirmation as its own
	// success: the relay invalidated itself.
	err = r.Publish(ctx, testEvent())
	require.ErrorIs(t, err, ErrRelayClosed)
	require.Len(t, ch.published, 1, "nothing was sent after invalidation")
}

func TestRelay_PublishError(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.publishErr = errors.New("channel gone")

	r, err := New(ch, "custody.events")
	require.NoError(t, err)

	err = r.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish")
}

func TestRelay_Close(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()

	r, err := New(ch, "custody.events")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.True(t, ch.closed)

	err = r.Publish(context.Background(), testEvent())
	require.ErrorIs(t, err, ErrRelayClosed)

	// Closing twice is not an error.
	require.NoError(t, r.Close())
}

func TestRelay_CancelledContext(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.silent = true

	r, err := New(ch, "custody.events", WithConfirmTimeout(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.Publish(ctx, testEvent())
	require.ErrorIs(t, err, context.Canceled)

	// Cancellation leaves a possibly-pending confirmation behind, so the
	// relay invalidates itself the same way a timeout does.
	err = r.Publish(context.Background(), testEvent())
	require.ErrorIs(t, err, ErrRelayClosed)
	assert.True(t, ch.closed)
}

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "custody.withdrawal_executed", RoutingKey(custody.EventWithdrawalExecuted))
	assert.Equal(t, "custody.ownership_transferred", RoutingKey(custody.EventOwnershipTransferred))
	assert.Equal(t, "custody.heir_changed", RoutingKey(custody.EventHeirChanged))
}
