package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/clock"
	"github.com/farhan/payroute/internal/models"
)

// breakerScanLimit bounds how much checkout history the circuit breaker
// reads; the threshold is far smaller, so this only needs to cover a
// realistic run of pending entries.
const breakerScanLimit = 10

// Result describes a successful cascade: which account took the charge and
// how many attempts it cost.
type Result struct {
	Account     *models.ProviderAccount
	AttemptID   string
	ProviderRef string
	Attempts    int
}

// Cascade orchestrates a bounded sequence of charge attempts for one
// payment, advancing through candidates on failure and recording every
// attempt in the ledger.
type Cascade struct {
	store            Store
	strategy         *Strategy
	charger          Charger
	clock            clock.Clock
	breakerThreshold int
	log              zerolog.Logger
}

func NewCascade(store Store, strategy *Strategy, charger Charger, clk clock.Clock, breakerThreshold int, log zerolog.Logger) *Cascade {
	return &Cascade{
		store:            store,
		strategy:         strategy,
		charger:          charger,
		clock:            clk,
		breakerThreshold: breakerThreshold,
		log:              log,
	}
}

// Execute runs the cascade: SELECT -> CALL -> {SUCCESS | FAILED -> SELECT},
// bounded by the merchant's policy. Individual call failures never escape;
// only ErrNoCandidates, ErrCircuitOpen, or ErrAllAttemptsFailed surface.
func (c *Cascade) Execute(ctx context.Context, merchantID string, amount int64, currency, checkoutID string) (*Result, error) {
	if err := c.checkBreaker(ctx, checkoutID); err != nil {
		return nil, err
	}

	policy, err := c.store.GetPolicy(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		policy = models.DefaultPolicy(merchantID)
	}

	maxAttempts := 1
	if policy.Mode == models.ModeManual && policy.FallbackEnabled {
		maxAttempts += policy.MaxRetries
	}

	excluded := make(map[string]bool)
	for attemptNum := 1; attemptNum <= maxAttempts; attemptNum++ {
		candidate, err := c.strategy.SelectNext(ctx, merchantID, amount, currency, excluded, checkoutID)
		if errors.Is(err, ErrNoCandidates) {
			if attemptNum == 1 {
				return nil, ErrNoCandidates
			}
			// Candidates ran out mid-cascade: exhaustion, not absence.
			break
		}
		if err != nil {
			return nil, err
		}

		now := c.clock.Now().UTC()
		attempt := &models.Attempt{
			ID:            models.NewID("att"),
			MerchantID:    merchantID,
			CheckoutID:    checkoutID,
			ProviderID:    candidate.Account.ID,
			Amount:        amount,
			Currency:      currency,
			AmountRef:     candidate.AmountRef,
			Status:        models.AttemptPending,
			AttemptNumber: attemptNum,
			Fallback:      attemptNum > 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := c.store.CreateAttempt(ctx, attempt); err != nil {
			return nil, fmt.Errorf("failed to record attempt: %w", err)
		}

		ref, chargeErr := c.charger.Charge(ctx, &candidate.Account, amount, currency)
		if chargeErr != nil {
			c.log.Warn().
				Str("checkout_id", checkoutID).
				Str("provider_id", candidate.Account.ID).
				Int("attempt", attemptNum).
				Err(chargeErr).
				Msg("charge attempt failed")
			if err := c.store.UpdateAttemptStatus(ctx, attempt.ID, models.AttemptFailed, "", chargeErr.Error()); err != nil {
				c.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to mark attempt failed")
			}
			excluded[candidate.Account.ID] = true
			continue
		}

		if err := c.store.UpdateAttemptStatus(ctx, attempt.ID, models.AttemptSuccess, ref, ""); err != nil {
			c.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to mark attempt succeeded")
		}
		c.log.Info().
			Str("checkout_id", checkoutID).
			Str("provider_id", candidate.Account.ID).
			Str("provider_ref", ref).
			Int("attempts", attemptNum).
			Msg("charge succeeded")

		account := candidate.Account
		return &Result{
			Account:     &account,
			AttemptID:   attempt.ID,
			ProviderRef: ref,
			Attempts:    attemptNum,
		}, nil
	}

	return nil, ErrAllAttemptsFailed
}

// checkBreaker refuses a new cascade when the checkout's most recent
// attempts are a run of consecutive failures. A success anywhere in the run
// resets the count; pending entries are skipped, except that a pending
// attempt at the head means something is still in flight and the breaker
// never trips.
func (c *Cascade) checkBreaker(ctx context.Context, checkoutID string) error {
	if checkoutID == "" || c.breakerThreshold <= 0 {
		return nil
	}

	attempts, err := c.store.RecentAttemptsByCheckout(ctx, checkoutID, breakerScanLimit)
	if err != nil {
		return err
	}
	if len(attempts) > 0 && attempts[0].Status == models.AttemptPending {
		return nil
	}

	consecutive := 0
	for _, a := range attempts {
		switch a.Status {
		case models.AttemptSuccess:
			return nil
		case models.AttemptFailed:
			consecutive++
			if consecutive >= c.breakerThreshold {
				c.log.Warn().
					Str("checkout_id", checkoutID).
					Int("consecutive_failures", consecutive).
					Msg("circuit breaker tripped")
				return ErrCircuitOpen
			}
		}
	}
	return nil
}
