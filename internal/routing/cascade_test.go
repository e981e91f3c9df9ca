package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/models"
)

func cascadeFixture(t *testing.T, charger *scriptedCharger) (*memStore, *fakeClock, *Cascade) {
	t.Helper()
	store := newMemStore()
	zone, _ := time.LoadLocation("America/New_York")
	clk := &fakeClock{now: time.Date(2025, 1, 15, 12, 0, 0, 0, zone)}
	_, _, strategy := newTestEngine(store, clk, &stubHealth{})
	cascade := NewCascade(store, strategy, charger, clk, 2, zerolog.Nop())
	return store, clk, cascade
}

func attemptsByCheckout(store *memStore, checkoutID string) []*models.Attempt {
	var out []*models.Attempt
	for _, a := range store.attempts {
		if a.CheckoutID == checkoutID {
			out = append(out, a)
		}
	}
	return out
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	charger := &scriptedCharger{}
	store, _, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
	}

	result, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Account.ID != "acct_a" {
		t.Errorf("expected acct_a, got %s", result.Account.ID)
	}
	if result.ProviderRef != "ref_acct_a" {
		t.Errorf("unexpected provider ref %s", result.ProviderRef)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}

	recorded := attemptsByCheckout(store, "chk_1")
	if len(recorded) != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", len(recorded))
	}
	if recorded[0].Status != models.AttemptSuccess {
		t.Errorf("expected success status, got %s", recorded[0].Status)
	}
	if recorded[0].Fallback {
		t.Error("first attempt must not be marked fallback")
	}
}

func TestExecute_FallsBackToNextProvider(t *testing.T) {
	charger := &scriptedCharger{fail: map[string]error{"acct_a": errors.New("card declined")}}
	store, _, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
		account("acct_b", "mch_1", nil, nil),
	}
	store.policies["mch_1"] = &models.RoutingPolicy{
		MerchantID:      "mch_1",
		Mode:            models.ModeManual,
		FallbackEnabled: true,
		MaxRetries:      2,
	}

	result, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Account.ID != "acct_b" {
		t.Errorf("expected fallback to acct_b, got %s", result.Account.ID)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}

	recorded := attemptsByCheckout(store, "chk_1")
	if len(recorded) != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", len(recorded))
	}
	if recorded[0].Status != models.AttemptFailed || recorded[0].FailureReason != "card declined" {
		t.Errorf("first attempt not recorded as failed: %+v", recorded[0])
	}
	if !recorded[1].Fallback {
		t.Error("second attempt should be marked fallback")
	}
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	boom := errors.New("provider down")
	charger := &scriptedCharger{fail: map[string]error{
		"acct_a": boom, "acct_b": boom, "acct_c": boom, "acct_d": boom,
	}}
	store, _, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
		account("acct_b", "mch_1", nil, nil),
		account("acct_c", "mch_1", nil, nil),
		account("acct_d", "mch_1", nil, nil),
	}
	store.policies["mch_1"] = &models.RoutingPolicy{
		MerchantID:      "mch_1",
		Mode:            models.ModeManual,
		FallbackEnabled: true,
		MaxRetries:      2,
	}

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Fatalf("expected ErrAllAttemptsFailed, got %v", err)
	}
	if len(charger.called) != 3 {
		t.Errorf("expected 3 charge calls (1 + 2 retries), got %d: %v", len(charger.called), charger.called)
	}
	seen := make(map[string]bool)
	for _, id := range charger.called {
		if seen[id] {
			t.Errorf("provider %s charged twice in one cascade", id)
		}
		seen[id] = true
	}
}

func TestExecute_AutomaticModeSingleAttempt(t *testing.T) {
	charger := &scriptedCharger{fail: map[string]error{"acct_a": errors.New("timeout")}}
	store, _, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
		account("acct_b", "mch_1", nil, nil),
	}
	// Default policy: automatic mode never retries.

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Fatalf("expected ErrAllAttemptsFailed, got %v", err)
	}
	if len(charger.called) != 1 {
		t.Errorf("expected a single charge call in automatic mode, got %d", len(charger.called))
	}
}

func TestExecute_FallbackDisabledSingleAttempt(t *testing.T) {
	charger := &scriptedCharger{fail: map[string]error{"acct_a": errors.New("timeout")}}
	store, _, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
		account("acct_b", "mch_1", nil, nil),
	}
	store.policies["mch_1"] = &models.RoutingPolicy{
		MerchantID:      "mch_1",
		Mode:            models.ModeManual,
		FallbackEnabled: false,
		MaxRetries:      2,
		Weights:         map[string]float64{"acct_a": 1, "acct_b": 0},
	}

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Fatalf("expected ErrAllAttemptsFailed, got %v", err)
	}
	if len(charger.called) != 1 {
		t.Errorf("expected a single charge call with fallback disabled, got %d", len(charger.called))
	}
}

func TestExecute_RunsOutOfCandidatesMidCascade(t *testing.T) {
	boom := errors.New("provider down")
	charger := &scriptedCharger{fail: map[string]error{"acct_a": boom, "acct_b": boom}}
	store, _, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
		account("acct_b", "mch_1", nil, nil),
	}
	store.policies["mch_1"] = &models.RoutingPolicy{
		MerchantID:      "mch_1",
		Mode:            models.ModeManual,
		FallbackEnabled: true,
		MaxRetries:      5,
	}

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Fatalf("expected ErrAllAttemptsFailed when candidates run out, got %v", err)
	}
	if len(charger.called) != 2 {
		t.Errorf("expected 2 charge calls, got %d", len(charger.called))
	}
}

func TestExecute_NoCandidates(t *testing.T) {
	charger := &scriptedCharger{}
	_, _, cascade := cascadeFixture(t, charger)

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if len(charger.called) != 0 {
		t.Errorf("charger should not be called without candidates")
	}
}

func TestExecute_BreakerTripsOnConsecutiveFailures(t *testing.T) {
	charger := &scriptedCharger{}
	store, clk, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
	}
	now := clk.now.UTC()
	store.seedAttempt("chk_1", "acct_a", models.AttemptFailed, 100, now.Add(-2*time.Minute))
	store.seedAttempt("chk_1", "acct_a", models.AttemptFailed, 100, now.Add(-time.Minute))

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if len(charger.called) != 0 {
		t.Error("charger must not be called when the breaker is open")
	}
	if len(attemptsByCheckout(store, "chk_1")) != 2 {
		t.Error("no new attempt should be recorded when the breaker is open")
	}
}

func TestExecute_PendingHeadHoldsBreaker(t *testing.T) {
	charger := &scriptedCharger{}
	store, clk, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
	}
	now := clk.now.UTC()
	store.seedAttempt("chk_1", "acct_a", models.AttemptFailed, 100, now.Add(-3*time.Minute))
	store.seedAttempt("chk_1", "acct_a", models.AttemptFailed, 100, now.Add(-2*time.Minute))
	store.seedAttempt("chk_1", "acct_a", models.AttemptPending, 100, now.Add(-time.Minute))

	result, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if err != nil {
		t.Fatalf("pending head should keep the breaker closed, got %v", err)
	}
	if result.Account.ID != "acct_a" {
		t.Errorf("unexpected account %s", result.Account.ID)
	}
}

func TestExecute_SuccessResetsBreaker(t *testing.T) {
	charger := &scriptedCharger{}
	store, clk, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
	}
	now := clk.now.UTC()
	store.seedAttempt("chk_1", "acct_a", models.AttemptFailed, 100, now.Add(-3*time.Minute))
	store.seedAttempt("chk_1", "acct_a", models.AttemptSuccess, 100, now.Add(-2*time.Minute))
	store.seedAttempt("chk_1", "acct_a", models.AttemptFailed, 100, now.Add(-time.Minute))

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if err != nil {
		t.Fatalf("a success in the run should reset the breaker, got %v", err)
	}
}

func TestExecute_BreakerSkipsOtherCheckouts(t *testing.T) {
	charger := &scriptedCharger{}
	store, clk, cascade := cascadeFixture(t, charger)
	store.providers = []models.ProviderAccount{
		account("acct_a", "mch_1", nil, nil),
	}
	now := clk.now.UTC()
	store.seedAttempt("chk_other", "acct_a", models.AttemptFailed, 100, now.Add(-2*time.Minute))
	store.seedAttempt("chk_other", "acct_a", models.AttemptFailed, 100, now.Add(-time.Minute))

	_, err := cascade.Execute(context.Background(), "mch_1", 100, "BRL", "chk_1")
	if err != nil {
		t.Fatalf("failures on another checkout must not trip this breaker, got %v", err)
	}
}
