package custody

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the persistable state of a vault: the four durable fields and
// nothing else. The reentrancy guard is transient and never survives a call,
// so it has no place here.
type Snapshot struct {
	Owner        Identity        `json:"owner"`
	Heir         Identity        `json:"heir"`
	LastActivity time.Time       `json:"lastActivity"`
	Balance      decimal.Decimal `json:"balance"`
}

// Snapshot captures the vault's durable state.
func (v *Vault) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	return Snapshot{
		Owner:        v.owner,
		Heir:         v.heir,
		LastActivity: v.lastActivity,
		Balance:      v.balance,
	}
}

// FromSnapshot reconstructs a vault from persisted state. The snapshot must
// satisfy the record invariants: non-null distinct owner and heir, a
// non-negative balance, and a non-zero activity timestamp.
func FromSnapshot(snapshot Snapshot, opts ...Option) (*Vault, error) {
	if snapshot.Balance.IsNegative() {
		return nil, NewDomainError(ErrorInvalidInput, "balance", "balance cannot be negative")
	}

	if snapshot.LastActivity.IsZero() {
		return nil, NewDomainError(ErrorInvalidInput, "lastActivity", "activity timestamp is required")
	}

	v, err := New(snapshot.Owner, snapshot.Heir, opts...)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.lastActivity = snapshot.LastActivity
	v.balance = snapshot.Balance
	v.mu.Unlock()

	return v, nil
}
