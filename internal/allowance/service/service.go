package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"driveassist_backend/internal/allowance/repository"
	"driveassist_backend/internal/events"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the persistence surface the service needs.
type Store interface {
	WithAccountLock(ctx context.Context, accountID uuid.UUID, kind repository.Kind, fn func(tx repository.Tx) error) error
	EnsureAllowance(ctx context.Context, accountID uuid.UUID, kind repository.Kind, complimentary int) error
	GetAllowance(ctx context.Context, accountID uuid.UUID, kind repository.Kind) (*repository.Allowance, error)
	ListPurchases(ctx context.Context, accountID uuid.UUID, kind repository.Kind) ([]repository.Purchase, error)
	HasRemaining(ctx context.Context, accountID uuid.UUID, kind repository.Kind, now time.Time) (bool, error)
	InsertPurchase(ctx context.Context, p *repository.Purchase) (bool, error)
	ExpirePurchases(ctx context.Context, now time.Time) (int, error)
}

// EventBus publishes domain events.
type EventBus interface {
	Publish(ctx context.Context, event events.Event)
}

// Consumption records which source served a consumed unit, so a failed
// downstream operation can hand it back to Refund.
type Consumption struct {
	AccountID  uuid.UUID
	Kind       repository.Kind
	Source     repository.Source
	PurchaseID uuid.UUID
}

// Balance is the read model returned to callers.
type Balance struct {
	Kind                   repository.Kind
	ComplimentaryRemaining int
	PurchasedRemaining     int
	SubscriptionActive     bool
	TotalConsumed          int
	Purchases              []repository.Purchase
}

// GrantInput describes a settled payment to credit against a meter.
type GrantInput struct {
	AccountID uuid.UUID
	Kind      repository.Kind
	Type      repository.PurchaseType
	Reference string
	Units     int
	ExpiresAt *time.Time
}

type Service struct {
	store    Store
	settings *settings.Store
	bus      EventBus
	logger   *logger.Logger
	now      func() time.Time
}

func New(store Store, st *settings.Store, bus EventBus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		settings: st,
		bus:      bus,
		logger:   log,
		now:      time.Now,
	}
}

// Provision creates both meter rows for a fresh account with the configured
// complimentary units. Safe to call repeatedly.
func (s *Service) Provision(ctx context.Context, accountID uuid.UUID) error {
	policy := s.settings.Engagement()

	if err := s.store.EnsureAllowance(ctx, accountID, repository.KindDiagnosis, policy.ComplimentaryDiagnosisCredits); err != nil {
		return err
	}
	if err := s.store.EnsureAllowance(ctx, accountID, repository.KindLead, policy.ComplimentaryLeadCredits); err != nil {
		return err
	}
	return nil
}

// HasRemaining reports whether a unit could currently be consumed. Callers
// must not treat a true result as a reservation.
func (s *Service) HasRemaining(ctx context.Context, accountID uuid.UUID, kind repository.Kind) (bool, error) {
	return s.store.HasRemaining(ctx, accountID, kind, s.now())
}

// Consume takes exactly one unit from the account's meter. Sources drain in
// order: complimentary first, then purchased packages oldest first, then an
// active subscription. Returns OutOfCredit when nothing can serve the unit.
func (s *Service) Consume(ctx context.Context, accountID uuid.UUID, kind repository.Kind) (*Consumption, error) {
	now := s.now()
	consumption := &Consumption{AccountID: accountID, Kind: kind}

	err := s.store.WithAccountLock(ctx, accountID, kind, func(tx repository.Tx) error {
		allowance, err := tx.Allowance()
		if err != nil {
			return err
		}

		if allowance.ComplimentaryRemaining > 0 {
			if err := tx.ConsumeComplimentary(); err != nil {
				return err
			}
			consumption.Source = repository.SourceComplimentary
			return nil
		}

		purchases, err := tx.ActivePurchases(now)
		if err != nil {
			return err
		}

		var subscription *repository.Purchase
		for i := range purchases {
			p := &purchases[i]
			if !p.ActiveAt(now) {
				continue
			}
			if p.Type == repository.TypeSubscription {
				if subscription == nil {
					subscription = p
				}
				continue
			}
			if err := tx.ConsumePurchase(p.ID, p.UnitsRemaining == 1); err != nil {
				return err
			}
			consumption.Source = repository.SourcePurchase
			consumption.PurchaseID = p.ID
			return nil
		}

		if subscription != nil {
			if err := tx.ConsumeSubscription(subscription.ID); err != nil {
				return err
			}
			consumption.Source = repository.SourceSubscription
			consumption.PurchaseID = subscription.ID
			return nil
		}

		return apperr.OutOfCredit(fmt.Sprintf("no %s credit remaining", kind))
	})
	if err != nil {
		return nil, err
	}

	s.logger.LedgerConsumed(accountID.String(), string(kind), string(consumption.Source))
	return consumption, nil
}

// Refund hands a previously consumed unit back to its original source. Used
// as compensation when the operation the unit paid for fails after the fact.
func (s *Service) Refund(ctx context.Context, c *Consumption) error {
	return s.store.WithAccountLock(ctx, c.AccountID, c.Kind, func(tx repository.Tx) error {
		switch c.Source {
		case repository.SourceComplimentary:
			return tx.RestoreComplimentary()
		case repository.SourcePurchase:
			return tx.RestorePurchase(c.PurchaseID)
		case repository.SourceSubscription:
			return tx.RestoreSubscription()
		default:
			return apperr.Internal(fmt.Sprintf("unknown consumption source %q", c.Source))
		}
	})
}

// Grant credits a settled payment. The payment reference is the idempotency
// key: replaying the same reference returns the existing grant untouched.
func (s *Service) Grant(ctx context.Context, in GrantInput) (*repository.Purchase, error) {
	if in.Units <= 0 && in.Type != repository.TypeSubscription {
		return nil, apperr.Validation("units must be positive")
	}
	if in.Reference == "" {
		return nil, apperr.Validation("payment reference is required")
	}

	if err := s.Provision(ctx, in.AccountID); err != nil {
		return nil, err
	}

	purchase := &repository.Purchase{
		ID:             uuid.New(),
		AccountID:      in.AccountID,
		Kind:           in.Kind,
		Type:           in.Type,
		Reference:      in.Reference,
		UnitsPurchased: in.Units,
		UnitsRemaining: in.Units,
		Status:         repository.StatusActive,
		ExpiresAt:      in.ExpiresAt,
	}

	inserted, err := s.store.InsertPurchase(ctx, purchase)
	if err != nil {
		if isUniqueViolation(err) {
			inserted = false
		} else {
			return nil, err
		}
	}
	if !inserted {
		existing, err := s.findByReference(ctx, in.AccountID, in.Kind, in.Reference)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}

	s.bus.Publish(ctx, events.PurchaseGranted{
		BaseEvent: events.NewBaseEvent(),
		AccountID: in.AccountID,
		Kind:      string(in.Kind),
		Units:     in.Units,
		Reference: in.Reference,
	})

	return purchase, nil
}

func (s *Service) findByReference(ctx context.Context, accountID uuid.UUID, kind repository.Kind, reference string) (*repository.Purchase, error) {
	purchases, err := s.store.ListPurchases(ctx, accountID, kind)
	if err != nil {
		return nil, err
	}
	for i := range purchases {
		if purchases[i].Reference == reference {
			return &purchases[i], nil
		}
	}
	return nil, apperr.Conflict("payment reference already granted to another meter")
}

// GetBalance assembles the read model for one meter.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID, kind repository.Kind) (*Balance, error) {
	allowance, err := s.store.GetAllowance(ctx, accountID, kind)
	if err != nil {
		return nil, err
	}

	purchases, err := s.store.ListPurchases(ctx, accountID, kind)
	if err != nil {
		return nil, err
	}

	now := s.now()
	balance := &Balance{
		Kind:                   kind,
		ComplimentaryRemaining: allowance.ComplimentaryRemaining,
		TotalConsumed:          allowance.TotalConsumed,
		Purchases:              purchases,
	}
	for i := range purchases {
		p := &purchases[i]
		if !p.ActiveAt(now) {
			continue
		}
		if p.Type == repository.TypeSubscription {
			balance.SubscriptionActive = true
			continue
		}
		balance.PurchasedRemaining += p.UnitsRemaining
	}
	return balance, nil
}

// ExpirePurchases sweeps overdue active purchases. Run from the worker.
func (s *Service) ExpirePurchases(ctx context.Context) (int, error) {
	n, err := s.store.ExpirePurchases(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired allowance purchases", "count", n)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
