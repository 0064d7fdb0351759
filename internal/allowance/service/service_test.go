package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"driveassist_backend/internal/allowance/repository"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/events"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store. WithAccountLock serializes on a mutex,
// mirroring the row lock the real implementation takes.
type fakeStore struct {
	mu         sync.Mutex
	allowances map[string]*repository.Allowance
	purchases  []*repository.Purchase
}

func newFakeStore() *fakeStore {
	return &fakeStore{allowances: make(map[string]*repository.Allowance)}
}

func key(accountID uuid.UUID, kind repository.Kind) string {
	return accountID.String() + "/" + string(kind)
}

func (s *fakeStore) WithAccountLock(ctx context.Context, accountID uuid.UUID, kind repository.Kind, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allowances[key(accountID, kind)]; !ok {
		return apperr.NotFound("allowance not found")
	}
	return fn(&fakeTx{store: s, accountID: accountID, kind: kind})
}

func (s *fakeStore) EnsureAllowance(ctx context.Context, accountID uuid.UUID, kind repository.Kind, complimentary int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(accountID, kind)
	if _, ok := s.allowances[k]; ok {
		return nil
	}
	s.allowances[k] = &repository.Allowance{
		AccountID:              accountID,
		Kind:                   kind,
		ComplimentaryRemaining: complimentary,
	}
	return nil
}

func (s *fakeStore) GetAllowance(ctx context.Context, accountID uuid.UUID, kind repository.Kind) (*repository.Allowance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.allowances[key(accountID, kind)]
	if !ok {
		return nil, apperr.NotFound("allowance not found")
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) ListPurchases(ctx context.Context, accountID uuid.UUID, kind repository.Kind) ([]repository.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []repository.Purchase
	for i := len(s.purchases) - 1; i >= 0; i-- {
		p := s.purchases[i]
		if p.AccountID == accountID && p.Kind == kind {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) HasRemaining(ctx context.Context, accountID uuid.UUID, kind repository.Kind, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.allowances[key(accountID, kind)]; ok && a.ComplimentaryRemaining > 0 {
		return true, nil
	}
	for _, p := range s.purchases {
		if p.AccountID == accountID && p.Kind == kind && p.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) InsertPurchase(ctx context.Context, p *repository.Purchase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.purchases {
		if existing.Reference == p.Reference {
			return false, nil
		}
	}
	cp := *p
	s.purchases = append(s.purchases, &cp)
	return true, nil
}

func (s *fakeStore) ExpirePurchases(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, p := range s.purchases {
		if p.Status == repository.StatusActive && p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
			p.Status = repository.StatusExpired
			n++
		}
	}
	return n, nil
}

type fakeTx struct {
	store     *fakeStore
	accountID uuid.UUID
	kind      repository.Kind
}

func (t *fakeTx) allowance() *repository.Allowance {
	return t.store.allowances[key(t.accountID, t.kind)]
}

func (t *fakeTx) Allowance() (*repository.Allowance, error) {
	cp := *t.allowance()
	return &cp, nil
}

func (t *fakeTx) ActivePurchases(now time.Time) ([]repository.Purchase, error) {
	var out []repository.Purchase
	for _, p := range t.store.purchases {
		if p.AccountID == t.accountID && p.Kind == t.kind && p.ActiveAt(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (t *fakeTx) ConsumeComplimentary() error {
	a := t.allowance()
	if a.ComplimentaryRemaining <= 0 {
		return apperr.OutOfCredit("no complimentary units remaining")
	}
	a.ComplimentaryRemaining--
	a.TotalConsumed++
	return nil
}

func (t *fakeTx) ConsumePurchase(id uuid.UUID, exhaust bool) error {
	for _, p := range t.store.purchases {
		if p.ID != id {
			continue
		}
		if p.Status != repository.StatusActive || p.UnitsRemaining <= 0 {
			return apperr.OutOfCredit("purchase has no units remaining")
		}
		p.UnitsRemaining--
		if exhaust {
			p.Status = repository.StatusExhausted
		}
		t.allowance().TotalConsumed++
		return nil
	}
	return apperr.NotFound("purchase not found")
}

func (t *fakeTx) ConsumeSubscription(id uuid.UUID) error {
	for _, p := range t.store.purchases {
		if p.ID == id && p.Status == repository.StatusActive {
			t.allowance().TotalConsumed++
			return nil
		}
	}
	return apperr.OutOfCredit("subscription is not active")
}

func (t *fakeTx) RestoreComplimentary() error {
	a := t.allowance()
	a.ComplimentaryRemaining++
	if a.TotalConsumed > 0 {
		a.TotalConsumed--
	}
	return nil
}

func (t *fakeTx) RestorePurchase(id uuid.UUID) error {
	for _, p := range t.store.purchases {
		if p.ID != id {
			continue
		}
		p.UnitsRemaining++
		if p.Status == repository.StatusExhausted {
			p.Status = repository.StatusActive
		}
		a := t.allowance()
		if a.TotalConsumed > 0 {
			a.TotalConsumed--
		}
		return nil
	}
	return apperr.NotFound("purchase not found")
}

func (t *fakeTx) RestoreSubscription() error {
	a := t.allowance()
	if a.TotalConsumed > 0 {
		a.TotalConsumed--
	}
	return nil
}

type noopBus struct{}

func (noopBus) Publish(ctx context.Context, event events.Event) {}

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()

	st, err := settings.NewStore("")
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	return New(store, st, noopBus{}, logger.New("development"))
}

func seedAccount(t *testing.T, svc *Service) uuid.UUID {
	t.Helper()

	accountID := uuid.New()
	if err := svc.Provision(context.Background(), accountID); err != nil {
		t.Fatalf("provision: %v", err)
	}
	return accountID
}

func TestConsumeDrainsComplimentaryFirst(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := seedAccount(t, svc)

	if _, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID,
		Kind:      repository.KindDiagnosis,
		Type:      repository.TypePackage,
		Reference: "pay-001",
		Units:     5,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	c, err := svc.Consume(context.Background(), accountID, repository.KindDiagnosis)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if c.Source != repository.SourceComplimentary {
		t.Fatalf("expected complimentary source, got %s", c.Source)
	}

	balance, err := svc.GetBalance(context.Background(), accountID, repository.KindDiagnosis)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.PurchasedRemaining != 5 {
		t.Fatalf("purchased units should be untouched, got %d", balance.PurchasedRemaining)
	}
}

func TestConcurrentConsumeOfLastUnit(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := uuid.New()

	if err := store.EnsureAllowance(context.Background(), accountID, repository.KindDiagnosis, 1); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(context.Background(), accountID, repository.KindDiagnosis)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, outOfCredit int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperr.Is(err, apperr.KindOutOfCredit):
			outOfCredit++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Fatalf("expected exactly 1 success, got %d", successes)
	}
	if outOfCredit != attempts-1 {
		t.Fatalf("expected %d out-of-credit failures, got %d", attempts-1, outOfCredit)
	}
}

func TestPurchaseExhaustsAfterLastUnit(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := uuid.New()

	if err := store.EnsureAllowance(context.Background(), accountID, repository.KindLead, 0); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	purchase, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID,
		Kind:      repository.KindLead,
		Type:      repository.TypePackage,
		Reference: "pay-100",
		Units:     5,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	for i := 0; i < 5; i++ {
		c, err := svc.Consume(context.Background(), accountID, repository.KindLead)
		if err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
		if c.PurchaseID != purchase.ID {
			t.Fatalf("consume %d drew from wrong purchase", i+1)
		}
	}

	purchases, err := store.ListPurchases(context.Background(), accountID, repository.KindLead)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if purchases[0].Status != repository.StatusExhausted {
		t.Fatalf("expected exhausted status, got %s", purchases[0].Status)
	}
	if purchases[0].UnitsRemaining != 0 {
		t.Fatalf("expected 0 units remaining, got %d", purchases[0].UnitsRemaining)
	}

	if _, err := svc.Consume(context.Background(), accountID, repository.KindLead); !apperr.Is(err, apperr.KindOutOfCredit) {
		t.Fatalf("expected out of credit after exhaustion, got %v", err)
	}
}

func TestConsumeDrainsPurchasesOldestFirst(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := uuid.New()

	if err := store.EnsureAllowance(context.Background(), accountID, repository.KindLead, 0); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	first, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindLead,
		Type: repository.TypePackage, Reference: "pay-old", Units: 1,
	})
	if err != nil {
		t.Fatalf("grant first: %v", err)
	}
	second, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindLead,
		Type: repository.TypePackage, Reference: "pay-new", Units: 1,
	})
	if err != nil {
		t.Fatalf("grant second: %v", err)
	}

	c, err := svc.Consume(context.Background(), accountID, repository.KindLead)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if c.PurchaseID != first.ID {
		t.Fatalf("expected oldest purchase %s, got %s", first.ID, c.PurchaseID)
	}

	c, err = svc.Consume(context.Background(), accountID, repository.KindLead)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if c.PurchaseID != second.ID {
		t.Fatalf("expected newer purchase %s, got %s", second.ID, c.PurchaseID)
	}
}

func TestExpiredPurchaseCannotServe(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := uuid.New()

	if err := store.EnsureAllowance(context.Background(), accountID, repository.KindDiagnosis, 0); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	yesterday := time.Now().Add(-24 * time.Hour)
	if _, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindDiagnosis,
		Type: repository.TypePackage, Reference: "pay-exp", Units: 3,
		ExpiresAt: &yesterday,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if _, err := svc.Consume(context.Background(), accountID, repository.KindDiagnosis); !apperr.Is(err, apperr.KindOutOfCredit) {
		t.Fatalf("expected out of credit, got %v", err)
	}

	remaining, err := svc.HasRemaining(context.Background(), accountID, repository.KindDiagnosis)
	if err != nil {
		t.Fatalf("has remaining: %v", err)
	}
	if remaining {
		t.Fatal("expired purchase should not count as remaining")
	}
}

func TestSubscriptionServesAfterPackagesDrain(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := uuid.New()

	if err := store.EnsureAllowance(context.Background(), accountID, repository.KindLead, 0); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	sub, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindLead,
		Type: repository.TypeSubscription, Reference: "sub-001",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	for i := 0; i < 3; i++ {
		c, err := svc.Consume(context.Background(), accountID, repository.KindLead)
		if err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
		if c.Source != repository.SourceSubscription || c.PurchaseID != sub.ID {
			t.Fatalf("consume %d should draw from subscription", i+1)
		}
	}
}

func TestGrantIsIdempotentPerReference(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := seedAccount(t, svc)

	first, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindDiagnosis,
		Type: repository.TypePackage, Reference: "pay-dup", Units: 5,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	replay, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindDiagnosis,
		Type: repository.TypePackage, Reference: "pay-dup", Units: 5,
	})
	if err != nil {
		t.Fatalf("replay grant: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replay returned a different purchase: %s vs %s", replay.ID, first.ID)
	}

	purchases, err := store.ListPurchases(context.Background(), accountID, repository.KindDiagnosis)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(purchases) != 1 {
		t.Fatalf("expected a single purchase, got %d", len(purchases))
	}
}

func TestRefundRestoresSource(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := seedAccount(t, svc)

	c, err := svc.Consume(context.Background(), accountID, repository.KindDiagnosis)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	before, err := svc.GetBalance(context.Background(), accountID, repository.KindDiagnosis)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}

	if err := svc.Refund(context.Background(), c); err != nil {
		t.Fatalf("refund: %v", err)
	}

	after, err := svc.GetBalance(context.Background(), accountID, repository.KindDiagnosis)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if after.ComplimentaryRemaining != before.ComplimentaryRemaining+1 {
		t.Fatalf("refund did not restore complimentary unit: %d -> %d",
			before.ComplimentaryRemaining, after.ComplimentaryRemaining)
	}
	if after.TotalConsumed != before.TotalConsumed-1 {
		t.Fatalf("refund did not roll back consumption counter")
	}
}

func TestGrantValidation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := uuid.New()

	if _, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindLead,
		Type: repository.TypePackage, Reference: "pay-zero", Units: 0,
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for zero units, got %v", err)
	}

	if _, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindLead,
		Type: repository.TypePackage, Units: 5,
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing reference, got %v", err)
	}
}

func TestExpireSweep(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	accountID := seedAccount(t, svc)

	yesterday := time.Now().Add(-24 * time.Hour)
	tomorrow := time.Now().Add(24 * time.Hour)

	if _, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindLead,
		Type: repository.TypePackage, Reference: "pay-a", Units: 2, ExpiresAt: &yesterday,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := svc.Grant(context.Background(), GrantInput{
		AccountID: accountID, Kind: repository.KindLead,
		Type: repository.TypePackage, Reference: "pay-b", Units: 2, ExpiresAt: &tomorrow,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	n, err := svc.ExpirePurchases(context.Background())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired purchase, got %d", n)
	}
}
