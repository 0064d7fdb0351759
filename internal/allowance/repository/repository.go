package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"driveassist_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const allowanceNotFoundMsg = "allowance not found"

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new allowance repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithAccountLock opens a transaction and locks the (account, kind) counter
// row with SELECT ... FOR UPDATE before running fn. Everything fn does through
// the Tx commits atomically with the lock release.
func (r *Repository) WithAccountLock(ctx context.Context, accountID uuid.UUID, kind Kind, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Taking the row lock up front serializes concurrent consumers of the
		// same account; the closure then reads a stable snapshot.
		tag, err := tx.Exec(ctx,
			`SELECT 1 FROM account_allowances WHERE account_id = $1 AND kind = $2 FOR UPDATE`,
			accountID, kind,
		)
		if err != nil {
			return fmt.Errorf("failed to lock allowance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound(allowanceNotFoundMsg)
		}

		return fn(&pgTx{ctx: ctx, tx: tx, accountID: accountID, kind: kind})
	})
}

// pgTx implements Tx over an open pgx transaction.
type pgTx struct {
	ctx       context.Context
	tx        pgx.Tx
	accountID uuid.UUID
	kind      Kind
}

func (t *pgTx) Allowance() (*Allowance, error) {
	var a Allowance
	err := t.tx.QueryRow(t.ctx,
		`SELECT account_id, kind, complimentary_remaining, total_consumed, created_at, updated_at
		 FROM account_allowances WHERE account_id = $1 AND kind = $2`,
		t.accountID, t.kind,
	).Scan(&a.AccountID, &a.Kind, &a.ComplimentaryRemaining, &a.TotalConsumed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(allowanceNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return &a, nil
}

func (t *pgTx) ActivePurchases(now time.Time) ([]Purchase, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT id, account_id, kind, type, reference, units_purchased, units_remaining, status, expires_at, created_at, updated_at
		 FROM allowance_purchases
		 WHERE account_id = $1 AND kind = $2 AND status = 'active'
		   AND (expires_at IS NULL OR expires_at >= $3)
		   AND (type = 'subscription' OR units_remaining > 0)
		 ORDER BY created_at ASC
		 FOR UPDATE`,
		t.accountID, t.kind, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active purchases: %w", err)
	}
	defer rows.Close()

	var items []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.Kind, &p.Type, &p.Reference, &p.UnitsPurchased,
			&p.UnitsRemaining, &p.Status, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (t *pgTx) ConsumeComplimentary() error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE account_allowances
		 SET complimentary_remaining = complimentary_remaining - 1,
		     total_consumed = total_consumed + 1,
		     updated_at = now()
		 WHERE account_id = $1 AND kind = $2 AND complimentary_remaining > 0`,
		t.accountID, t.kind,
	)
	if err != nil {
		return fmt.Errorf("failed to consume complimentary unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.OutOfCredit("no complimentary units remaining")
	}
	return nil
}

func (t *pgTx) ConsumePurchase(id uuid.UUID, exhaust bool) error {
	status := StatusActive
	if exhaust {
		status = StatusExhausted
	}

	tag, err := t.tx.Exec(t.ctx,
		`UPDATE allowance_purchases
		 SET units_remaining = units_remaining - 1, status = $2, updated_at = now()
		 WHERE id = $1 AND status = 'active' AND units_remaining > 0`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to consume purchase unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.OutOfCredit("purchase has no units remaining")
	}

	return t.bumpTotalConsumed()
}

func (t *pgTx) ConsumeSubscription(id uuid.UUID) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE allowance_purchases SET updated_at = now()
		 WHERE id = $1 AND status = 'active' AND type = 'subscription'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to consume subscription unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.OutOfCredit("subscription is not active")
	}

	return t.bumpTotalConsumed()
}

func (t *pgTx) RestoreComplimentary() error {
	_, err := t.tx.Exec(t.ctx,
		`UPDATE account_allowances
		 SET complimentary_remaining = complimentary_remaining + 1,
		     total_consumed = GREATEST(total_consumed - 1, 0),
		     updated_at = now()
		 WHERE account_id = $1 AND kind = $2`,
		t.accountID, t.kind,
	)
	if err != nil {
		return fmt.Errorf("failed to restore complimentary unit: %w", err)
	}
	return nil
}

func (t *pgTx) RestorePurchase(id uuid.UUID) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE allowance_purchases
		 SET units_remaining = units_remaining + 1,
		     status = CASE WHEN status = 'exhausted' THEN 'active' ELSE status END,
		     updated_at = now()
		 WHERE id = $1 AND status IN ('active', 'exhausted')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to restore purchase unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("purchase not found")
	}

	_, err = t.tx.Exec(t.ctx,
		`UPDATE account_allowances
		 SET total_consumed = GREATEST(total_consumed - 1, 0), updated_at = now()
		 WHERE account_id = $1 AND kind = $2`,
		t.accountID, t.kind,
	)
	if err != nil {
		return fmt.Errorf("failed to restore consumption counter: %w", err)
	}
	return nil
}

func (t *pgTx) RestoreSubscription() error {
	_, err := t.tx.Exec(t.ctx,
		`UPDATE account_allowances
		 SET total_consumed = GREATEST(total_consumed - 1, 0), updated_at = now()
		 WHERE account_id = $1 AND kind = $2`,
		t.accountID, t.kind,
	)
	if err != nil {
		return fmt.Errorf("failed to restore consumption counter: %w", err)
	}
	return nil
}

func (t *pgTx) bumpTotalConsumed() error {
	_, err := t.tx.Exec(t.ctx,
		`UPDATE account_allowances SET total_consumed = total_consumed + 1, updated_at = now()
		 WHERE account_id = $1 AND kind = $2`,
		t.accountID, t.kind,
	)
	if err != nil {
		return fmt.Errorf("failed to bump consumption counter: %w", err)
	}
	return nil
}

// EnsureAllowance creates the counter row if it does not exist yet.
func (r *Repository) EnsureAllowance(ctx context.Context, accountID uuid.UUID, kind Kind, complimentary int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO account_allowances (account_id, kind, complimentary_remaining, total_consumed, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, now(), now())
		 ON CONFLICT (account_id, kind) DO NOTHING`,
		accountID, kind, complimentary,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure allowance: %w", err)
	}
	return nil
}

// GetAllowance retrieves the counter row without locking.
func (r *Repository) GetAllowance(ctx context.Context, accountID uuid.UUID, kind Kind) (*Allowance, error) {
	var a Allowance
	err := r.pool.QueryRow(ctx,
		`SELECT account_id, kind, complimentary_remaining, total_consumed, created_at, updated_at
		 FROM account_allowances WHERE account_id = $1 AND kind = $2`,
		accountID, kind,
	).Scan(&a.AccountID, &a.Kind, &a.ComplimentaryRemaining, &a.TotalConsumed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(allowanceNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return &a, nil
}

// ListPurchases returns all purchases for one meter, newest first.
func (r *Repository) ListPurchases(ctx context.Context, accountID uuid.UUID, kind Kind) ([]Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, kind, type, reference, units_purchased, units_remaining, status, expires_at, created_at, updated_at
		 FROM allowance_purchases
		 WHERE account_id = $1 AND kind = $2
		 ORDER BY created_at DESC`,
		accountID, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var items []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.Kind, &p.Type, &p.Reference, &p.UnitsPurchased,
			&p.UnitsRemaining, &p.Status, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// HasRemaining reports whether any source can serve a unit. A pure read; the
// authoritative check happens again under lock inside Consume.
func (r *Repository) HasRemaining(ctx context.Context, accountID uuid.UUID, kind Kind, now time.Time) (bool, error) {
	var remaining bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM account_allowances
		   WHERE account_id = $1 AND kind = $2 AND complimentary_remaining > 0
		 ) OR EXISTS (
		   SELECT 1 FROM allowance_purchases
		   WHERE account_id = $1 AND kind = $2 AND status = 'active'
		     AND (expires_at IS NULL OR expires_at >= $3)
		     AND (type = 'subscription' OR units_remaining > 0)
		 )`,
		accountID, kind, now,
	).Scan(&remaining)
	if err != nil {
		return false, fmt.Errorf("failed to check remaining allowance: %w", err)
	}
	return remaining, nil
}

// InsertPurchase inserts a purchase keyed by payment reference. Duplicate
// references are absorbed silently so repeated payment callbacks are harmless.
func (r *Repository) InsertPurchase(ctx context.Context, p *Purchase) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO allowance_purchases (id, account_id, kind, type, reference, units_purchased, units_remaining, status, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		 ON CONFLICT (reference) DO NOTHING`,
		p.ID, p.AccountID, p.Kind, p.Type, p.Reference, p.UnitsPurchased, p.UnitsRemaining, p.Status, p.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert purchase: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpirePurchases flips overdue active purchases to expired.
func (r *Repository) ExpirePurchases(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE allowance_purchases
		 SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire purchases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Compile-time check that Repository implements Store.
var _ Store = (*Repository)(nil)
