package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

// memStore is an in-memory Store for engine tests. Attempts are kept in
// insertion order; RecentAttemptsByCheckout walks them newest first.
type memStore struct {
	providers []models.ProviderAccount
	policies  map[string]*models.RoutingPolicy
	checkouts map[string]*models.Checkout
	attempts  []*models.Attempt
}

func newMemStore() *memStore {
	return &memStore{
		policies:  make(map[string]*models.RoutingPolicy),
		checkouts: make(map[string]*models.Checkout),
	}
}

func (s *memStore) ListLinkedProviders(_ context.Context, merchantID string) ([]models.ProviderAccount, error) {
	var out []models.ProviderAccount
	for _, p := range s.providers {
		if p.MerchantID == merchantID && p.Enabled && !p.Archived {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetProvider(_ context.Context, id string) (*models.ProviderAccount, error) {
	for i := range s.providers {
		if s.providers[i].ID == id {
			p := s.providers[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetPolicy(_ context.Context, merchantID string) (*models.RoutingPolicy, error) {
	return s.policies[merchantID], nil
}

func (s *memStore) GetCheckout(_ context.Context, id string) (*models.Checkout, error) {
	c, ok := s.checkouts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) AssignCheckoutProvider(_ context.Context, id, providerID string) error {
	c, ok := s.checkouts[id]
	if !ok {
		return errors.New("checkout not found")
	}
	c.AssignedProviderID = providerID
	return nil
}

func (s *memStore) CreateAttempt(_ context.Context, a *models.Attempt) error {
	cp := *a
	s.attempts = append(s.attempts, &cp)
	return nil
}

func (s *memStore) UpdateAttemptStatus(_ context.Context, id string, status models.AttemptStatus, providerRef, failureReason string) error {
	for _, a := range s.attempts {
		if a.ID == id {
			a.Status = status
			a.ProviderRef = providerRef
			a.FailureReason = failureReason
			return nil
		}
	}
	return errors.New("attempt not found")
}

func (s *memStore) SumSuccessfulAmount(_ context.Context, providerID string, from, to time.Time) (int64, error) {
	var total int64
	for _, a := range s.attempts {
		if a.ProviderID != providerID || a.Status != models.AttemptSuccess {
			continue
		}
		if a.CreatedAt.Before(from) || !a.CreatedAt.Before(to) {
			continue
		}
		total += a.AmountRef
	}
	return total, nil
}

func (s *memStore) RecentAttemptsByCheckout(_ context.Context, checkoutID string, limit int) ([]models.Attempt, error) {
	var out []models.Attempt
	for i := len(s.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if s.attempts[i].CheckoutID == checkoutID {
			out = append(out, *s.attempts[i])
		}
	}
	return out, nil
}

// seedAttempt records a finished attempt directly in the ledger.
func (s *memStore) seedAttempt(checkoutID, providerID string, status models.AttemptStatus, amountRef int64, at time.Time) {
	s.attempts = append(s.attempts, &models.Attempt{
		ID:         fmt.Sprintf("att_seed_%d", len(s.attempts)),
		CheckoutID: checkoutID,
		ProviderID: providerID,
		AmountRef:  amountRef,
		Status:     status,
		CreatedAt:  at,
	})
}

type stubHealth struct {
	down map[string]bool
}

func (h *stubHealth) IsAcceptingCharges(_ context.Context, account *models.ProviderAccount) bool {
	if h.down == nil {
		return true
	}
	return !h.down[account.ID]
}

// stubFX treats every currency as the reference currency.
type stubFX struct{}

func (stubFX) ToReference(_ context.Context, amount int64, _ string) int64 { return amount }

// scriptedCharger fails the accounts listed in fail and records the order
// providers were called in.
type scriptedCharger struct {
	fail   map[string]error
	called []string
}

func (c *scriptedCharger) Charge(_ context.Context, account *models.ProviderAccount, _ int64, _ string) (string, error) {
	c.called = append(c.called, account.ID)
	if err, ok := c.fail[account.ID]; ok {
		return "", err
	}
	return "ref_" + account.ID, nil
}

func account(id, merchantID string, dailyCap, monthlyCap *int64) models.ProviderAccount {
	return models.ProviderAccount{
		ID:         id,
		MerchantID: merchantID,
		Name:       id,
		Kind:       "test",
		PublicKey:  "pk_" + id,
		Enabled:    true,
		DailyCap:   dailyCap,
		MonthlyCap: monthlyCap,
	}
}

func capOf(v int64) *int64 { return &v }

func newTestEngine(store *memStore, clk *fakeClock, health HealthChecker) (*Usage, *Filter, *Strategy) {
	zone, _ := time.LoadLocation("America/New_York")
	log := zerolog.Nop()
	usage := NewUsage(store, clk, zone, 6)
	filter := NewFilter(store, usage, health, stubFX{}, log)
	strategy := NewStrategy(filter, store, log)
	return usage, filter, strategy
}
