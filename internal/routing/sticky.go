package routing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/clock"
	"github.com/farhan/payroute/internal/models"
)

// Sticky binds a checkout to the first provider account chosen for it, so
// repeated client polls see the same account (and public key) until the
// checkout expires.
type Sticky struct {
	store    Store
	strategy *Strategy
	clock    clock.Clock
	log      zerolog.Logger
}

func NewSticky(store Store, strategy *Strategy, clk clock.Clock, log zerolog.Logger) *Sticky {
	return &Sticky{
		store:    store,
		strategy: strategy,
		clock:    clk,
		log:      log,
	}
}

// EnsureAssigned returns the checkout's assigned account, selecting and
// persisting one on first call. An existing assignment is returned as-is
// without re-running selection.
func (s *Sticky) EnsureAssigned(ctx context.Context, checkoutID string) (*models.ProviderAccount, error) {
	checkout, err := s.store.GetCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if checkout == nil {
		return nil, ErrCheckoutNotFound
	}
	if checkout.Expired(s.clock.Now()) {
		return nil, ErrCheckoutExpired
	}

	if checkout.AssignedProviderID != "" {
		account, err := s.store.GetProvider(ctx, checkout.AssignedProviderID)
		if err != nil {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
		// Assigned account disappeared; fall through and reselect.
		s.log.Warn().
			Str("checkout_id", checkoutID).
			Str("provider_id", checkout.AssignedProviderID).
			Msg("assigned provider missing, reselecting")
	}

	candidate, err := s.strategy.SelectNext(ctx, checkout.MerchantID, checkout.Amount, checkout.Currency, nil, checkout.ID)
	if err != nil {
		return nil, err
	}

	if err := s.store.AssignCheckoutProvider(ctx, checkout.ID, candidate.Account.ID); err != nil {
		return nil, fmt.Errorf("failed to persist checkout assignment: %w", err)
	}

	s.log.Info().
		Str("checkout_id", checkoutID).
		Str("provider_id", candidate.Account.ID).
		Msg("checkout assigned to provider")

	account := candidate.Account
	return &account, nil
}
