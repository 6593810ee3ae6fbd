package custody

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies the kind of custody notification.
type EventType string

const (
	// EventDepositReceived is emitted when incoming value credits the balance.
	EventDepositReceived EventType = "DEPOSIT_RECEIVED"
	// EventWithdrawalExecuted is emitted when a positive-amount withdraw completes.
	EventWithdrawalExecuted EventType = "WITHDRAWAL_EXECUTED"
	// EventHeirChanged is emitted when the heir is replaced, by the owner or by a claim.
	EventHeirChanged EventType = "HEIR_CHANGED"
	// EventOwnershipTransferred is emitted when a claim promotes the heir to owner.
	EventOwnershipTransferred EventType = "OWNERSHIP_TRANSFERRED"
)

// Event is a structured custody notification. Events are pure observability
// side effects: they are emitted after the state change commits and sink
// failures never affect the operation outcome.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Sender     Identity  `json:"sender,omitempty"`
	Recipient  Identity  `json:"recipient,omitempty"`
	// Amount is set on value-moving events (deposit, withdrawal) and
	// omitted on identity events.
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Previous Identity         `json:"previous,omitempty"`
	Current  Identity         `json:"current,omitempty"`
}

// Sink receives custody events. Implementations must treat delivery as
// best-effort; returned errors are logged by the vault and dropped.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NopSink discards all events.
type NopSink struct{}

// Publish drops the event.
func (NopSink) Publish(_ context.Context, _ Event) error { return nil }

// MemorySink buffers events in memory. Safe for concurrent use; intended
// for tests and in-process observers.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish appends the event to the buffer.
func (s *MemorySink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)

	return nil
}

// Events returns a copy of all buffered events in emission order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)

	return out
}

// OfType returns buffered events matching the given type, in emission order.
func (s *MemorySink) OfType(eventType EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event

	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}

	return out
}
