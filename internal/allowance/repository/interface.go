package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tx exposes the ledger rows of one account/meter pair while they are held
// under an exclusive lock. All reads and writes inside the closure passed to
// Store.WithAccountLock observe and mutate the same transaction.
type Tx interface {
	// Allowance returns the locked counter row.
	Allowance() (*Allowance, error)
	// ActivePurchases returns purchases still able to serve a unit at now,
	// oldest first. Rows are locked together with the allowance.
	ActivePurchases(now time.Time) ([]Purchase, error)
	// ConsumeComplimentary decrements the complimentary counter by one and
	// increments total consumption.
	ConsumeComplimentary() error
	// ConsumePurchase decrements one unit from the purchase and increments
	// total consumption. When exhaust is true the purchase status flips to
	// exhausted in the same statement.
	ConsumePurchase(id uuid.UUID, exhaust bool) error
	// ConsumeSubscription increments total consumption without touching units.
	ConsumeSubscription(id uuid.UUID) error
	// RestoreComplimentary re-credits one complimentary unit (rollback path).
	RestoreComplimentary() error
	// RestorePurchase re-credits one unit to the purchase, reactivating it if
	// it had been flipped to exhausted (rollback path).
	RestorePurchase(id uuid.UUID) error
	// RestoreSubscription decrements total consumption only; subscription
	// units are not metered (rollback path).
	RestoreSubscription() error
}

// Store is the persistence boundary of the ledger service. The production
// implementation is PostgreSQL; tests substitute an in-memory fake.
type Store interface {
	// WithAccountLock runs fn inside a transaction holding an exclusive lock
	// on the (account, kind) ledger. Concurrent callers serialize here, which
	// is what makes check-and-decrement atomic.
	WithAccountLock(ctx context.Context, accountID uuid.UUID, kind Kind, fn func(tx Tx) error) error

	// EnsureAllowance creates the counter row when absent, seeding it with
	// the complimentary units. Existing rows are left untouched.
	EnsureAllowance(ctx context.Context, accountID uuid.UUID, kind Kind, complimentary int) error

	// GetAllowance returns the counter row without locking.
	GetAllowance(ctx context.Context, accountID uuid.UUID, kind Kind) (*Allowance, error)

	// ListPurchases returns the account's purchases for one meter, newest first.
	ListPurchases(ctx context.Context, accountID uuid.UUID, kind Kind) ([]Purchase, error)

	// HasRemaining reports whether any source can serve a unit at now.
	HasRemaining(ctx context.Context, accountID uuid.UUID, kind Kind, now time.Time) (bool, error)

	// InsertPurchase inserts a purchase row keyed by its payment reference.
	// A duplicate reference inserts nothing and returns inserted=false.
	InsertPurchase(ctx context.Context, p *Purchase) (inserted bool, err error)

	// ExpirePurchases flips active purchases past their expiry to expired and
	// returns how many rows changed.
	ExpirePurchases(ctx context.Context, now time.Time) (int, error)
}
