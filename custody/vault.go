package custody

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultInactivityPeriod is the canonical owner-inactivity window after
// which the heir becomes eligible to claim ownership.
const DefaultInactivityPeriod = 30 * 24 * time.Hour

// Transferor executes a synchronous outbound value transfer to a recipient.
// The vault treats any returned error as a failed transfer and rolls the
// whole withdraw back.
type Transferor interface {
	Transfer(ctx context.Context, recipient Identity, amount decimal.Decimal) error
}

// Vault is the custody state machine: one owner, one heir, one balance, one
// inactivity timer. Safe for concurrent use; every operation is applied
// fully or not at all.
type Vault struct {
	mu           sync.Mutex
	owner        Identity
	heir         Identity
	lastActivity time.Time
	balance      decimal.Decimal
	withdrawing  bool

	inactivityPeriod time.Duration
	clock            Clock
	transferor       Transferor
	sink             Sink
	logger           *zap.Logger
}

// Option configures a Vault.
type Option func(v *Vault)

// WithClock sets the time source. Defaults to SystemClock.
func WithClock(clock Clock) Option {
	return func(v *Vault) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithTransferor sets the outbound value transfer route. Without one, any
// positive-amount withdraw fails with a transfer-failed rejection.
func WithTransferor(transferor Transferor) Option {
	return func(v *Vault) {
		v.transferor = transferor
	}
}

// WithSink sets the notification sink. Defaults to NopSink.
func WithSink(sink Sink) Option {
	return func(v *Vault) {
		if sink != nil {
			v.sink = sink
		}
	}
}

// WithLogger sets a structured logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithInactivityPeriod overrides the claim eligibility window. Non-positive
// values are ignored and the default is kept.
func WithInactivityPeriod(period time.Duration) Option {
	return func(v *Vault) {
		if period > 0 {
			v.inactivityPeriod = period
		}
	}
}

// New creates a vault owned by owner with the given initial heir and a zero
// balance. The inactivity clock starts at construction time.
func New(owner, heir Identity, opts ...Option) (*Vault, error) {
	if owner.IsZero() {
		return nil, NewDomainError(ErrorInvalidInput, "owner", "owner identity is required")
	}

	if heir.IsZero() {
		return nil, NewDomainError(ErrorInvalidSuccessor, "heir", "heir identity is required")
	}

	if heir == owner {
		return nil, NewDomainError(ErrorInvalidSuccessor, "heir", "heir cannot equal the owner")
	}

	v := &Vault{
		owner:            owner,
		heir:             heir,
		balance:          decimal.Zero,
		inactivityPeriod: DefaultInactivityPeriod,
		clock:            SystemClock{},
		sink:             NopSink{},
		logger:           zap.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	v.lastActivity = v.clock.Now()

	return v, nil
}

// UpdateHeir replaces the heir. Owner-only. Heir changes are not evidence of
// owner activity, so the inactivity timer is left untouched. Re-installing
// the current heir is a permitted no-op update.
func (v *Vault) UpdateHeir(ctx context.Context, caller, newHeir Identity) error {
	v.mu.Lock()

	if caller != v.owner {
		v.mu.Unlock()

		return NewDomainError(ErrorUnauthorizedOwner, "caller", "caller is not the current owner")
	}

	if newHeir.IsZero() {
		v.mu.Unlock()

		return NewDomainError(ErrorInvalidSuccessor, "newHeir", "heir identity is required")
	}

	if newHeir == v.owner {
		v.mu.Unlock()

		return NewDomainError(ErrorInvalidSuccessor, "newHeir", "heir cannot equal the owner")
	}

	previous := v.heir
	v.heir = newHeir
	occurredAt := v.clock.Now()
	v.mu.Unlock()

	v.emit(ctx, Event{
		Type:       EventHeirChanged,
		OccurredAt: occurredAt,
		Sender:     caller,
		Previous:   previous,
		Current:    newHeir,
	})

	return nil
}

// Withdraw moves amount from the balance to the owner's external account and
// records owner activity. A zero amount is the sanctioned heartbeat: it
// resets the inactivity timer without moving value and emits no withdrawal
// event. The reentrancy guard is latched for the full duration of the call
// and released on every exit path.
//
// No state is written until the outbound transfer has succeeded, so a
// failed transfer leaves the balance and the activity timestamp untouched.
func (v *Vault) Withdraw(ctx context.Context, caller Identity, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return NewDomainError(ErrorInvalidInput, "amount", "amount cannot be negative")
	}

	v.mu.Lock()

	if caller != v.owner {
		v.mu.Unlock()

		return NewDomainError(ErrorUnauthorizedOwner, "caller", "caller is not the current owner")
	}

	if v.withdrawing {
		v.mu.Unlock()

		return NewDomainError(ErrorReentrantCall, "", "a withdraw for this record is already in progress")
	}

	if amount.GreaterThan(v.balance) {
		v.mu.Unlock()

		return NewDomainError(ErrorInsufficientBalance, "amount",
			fmt.Sprintf("requested=%s available=%s", amount, v.balance))
	}

	v.withdrawing = true
	recipient := v.owner
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.withdrawing = false
		v.mu.Unlock()
	}()

	// The transfer hands control to external code, so the lock is not held
	// here; the latched guard is what rejects a callback into Withdraw.
	if amount.IsPositive() {
		if v.transferor == nil {
			return NewDomainError(ErrorTransferFailed, "", "no outbound transfer route configured")
		}

		if err := v.transferor.Transfer(ctx, recipient, amount); err != nil {
			return NewDomainError(ErrorTransferFailed, "", fmt.Sprintf("outbound transfer: %s", err))
		}
	}

	v.mu.Lock()
	occurredAt := v.clock.Now()
	v.lastActivity = occurredAt

	if amount.IsPositive() {
		v.balance = v.balance.Sub(amount)
	}
	v.mu.Unlock()

	if amount.IsPositive() {
		v.emit(ctx, Event{
			Type:       EventWithdrawalExecuted,
			OccurredAt: occurredAt,
			Recipient:  recipient,
			Amount:     &amount,
		})
	}

	return nil
}

// ClaimOwnership promotes the calling heir to owner once the inactivity
// period has fully elapsed. The boundary is inclusive: a claim at exactly
// LastActivity + InactivityPeriod succeeds. The claimant must name a
// successor distinct from itself so the chain never loses its heir.
func (v *Vault) ClaimOwnership(ctx context.Context, caller, newHeir Identity) error {
	v.mu.Lock()

	if caller != v.heir {
		v.mu.Unlock()

		return NewDomainError(ErrorUnauthorizedHeir, "caller", "caller is not the current heir")
	}

	now := v.clock.Now()
	deadline := v.lastActivity.Add(v.inactivityPeriod)

	if now.Before(deadline) {
		v.mu.Unlock()

		return NewDomainError(ErrorOwnerStillActive, "",
			fmt.Sprintf("owner inactive for %s of required %s", now.Sub(v.lastActivity), v.inactivityPeriod))
	}

	if newHeir.IsZero() {
		v.mu.Unlock()

		return NewDomainError(ErrorInvalidSuccessor, "newHeir", "successor identity is required")
	}

	if newHeir == caller {
		v.mu.Unlock()

		return NewDomainError(ErrorInvalidSuccessor, "newHeir", "claimant cannot name itself as successor")
	}

	previousOwner := v.owner
	v.owner = caller
	v.heir = newHeir
	v.lastActivity = now
	v.mu.Unlock()

	v.emit(ctx, Event{
		Type:       EventOwnershipTransferred,
		OccurredAt: now,
		Previous:   previousOwner,
		Current:    caller,
	})
	v.emit(ctx, Event{
		Type:       EventHeirChanged,
		OccurredAt: now,
		Sender:     caller,
		Previous:   caller,
		Current:    newHeir,
	})

	return nil
}

// Deposit is the value-receiving boundary. Any positive amount from any
// sender credits the balance, with or without payload data. A zero amount
// with payload is rejected: the record accepts unsolicited funds but never
// a no-op instruction. A zero amount without payload is a silent no-op.
func (v *Vault) Deposit(ctx context.Context, sender Identity, amount decimal.Decimal, payload []byte) error {
	if amount.IsNegative() {
		return NewDomainError(ErrorInvalidInput, "amount", "amount cannot be negative")
	}

	if amount.IsZero() {
		if len(payload) > 0 {
			return NewDomainError(ErrorInvalidCall, "", "zero-value call with payload data")
		}

		return nil
	}

	v.mu.Lock()
	v.balance = v.balance.Add(amount)
	occurredAt := v.clock.Now()
	v.mu.Unlock()

	v.emit(ctx, Event{
		Type:       EventDepositReceived,
		OccurredAt: occurredAt,
		Sender:     sender,
		Amount:     &amount,
	})

	return nil
}

// Owner returns the current owner identity.
func (v *Vault) Owner() Identity {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.owner
}

// Heir returns the current heir identity.
func (v *Vault) Heir() Identity {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.heir
}

// Balance returns the current custodied balance.
func (v *Vault) Balance() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.balance
}

// LastActivity returns the timestamp of the last recorded owner activity.
func (v *Vault) LastActivity() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.lastActivity
}

// InactivityPeriod returns the configured claim eligibility window.
func (v *Vault) InactivityPeriod() time.Duration {
	return v.inactivityPeriod
}

// TimeUntilClaimable returns how long until the heir may claim, or zero if
// the claim window is already open.
func (v *Vault) TimeUntilClaimable() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()

	remaining := v.lastActivity.Add(v.inactivityPeriod).Sub(v.clock.Now())
	if remaining < 0 {
		return 0
	}

	return remaining
}

// CanClaim reports whether the inactivity period has elapsed.
func (v *Vault) CanClaim() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return !v.clock.Now().Before(v.lastActivity.Add(v.inactivityPeriod))
}

func (v *Vault) emit(ctx context.Context, event Event) {
	event.ID = uuid.New()

	if err := v.sink.Publish(ctx, event); err != nil {
		v.logger.Warn("custody: event publish failed",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
