package routing

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/models"
)

// ScoredCandidate pairs an eligible provider account with the usage figures
// computed while filtering, so selection does not re-query the ledger.
type ScoredCandidate struct {
	Account          models.ProviderAccount
	BusinessDayUsage int64
	MonthUsage       int64
	AmountRef        int64
}

// HeadroomRatio is the remaining capacity fraction under the tighter of the
// daily and monthly caps, clamped to [0, 1]. An uncapped dimension counts
// as full headroom.
func (c ScoredCandidate) HeadroomRatio() float64 {
	ratio := 1.0
	if c.Account.DailyCap != nil && *c.Account.DailyCap > 0 {
		ratio = math.Min(ratio, headroomFraction(*c.Account.DailyCap, c.BusinessDayUsage))
	}
	if c.Account.MonthlyCap != nil && *c.Account.MonthlyCap > 0 {
		ratio = math.Min(ratio, headroomFraction(*c.Account.MonthlyCap, c.MonthUsage))
	}
	return ratio
}

func headroomFraction(cap, usage int64) float64 {
	f := float64(cap-usage) / float64(cap)
	return math.Max(0, math.Min(1, f))
}

// Filter produces the provider accounts that are active, healthy, and have
// enough remaining headroom for a given amount.
type Filter struct {
	store  Store
	usage  *Usage
	health HealthChecker
	fx     CurrencyConverter
	log    zerolog.Logger
}

func NewFilter(store Store, usage *Usage, health HealthChecker, fx CurrencyConverter, log zerolog.Logger) *Filter {
	return &Filter{
		store:  store,
		usage:  usage,
		health: health,
		fx:     fx,
		log:    log,
	}
}

// Candidates evaluates every linked account not in excluded. The amount is
// converted to the reference currency once; cap checks run before the
// health probe so the network call only happens for accounts with headroom.
func (f *Filter) Candidates(ctx context.Context, merchantID string, amount int64, currency string, excluded map[string]bool) ([]ScoredCandidate, error) {
	accounts, err := f.store.ListLinkedProviders(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	amountRef := f.fx.ToReference(ctx, amount, currency)

	var candidates []ScoredCandidate
	for i := range accounts {
		acct := accounts[i]
		if excluded[acct.ID] {
			continue
		}

		dayUsage, err := f.usage.BusinessDayUsage(ctx, acct.ID)
		if err != nil {
			return nil, err
		}
		monthUsage, err := f.usage.MonthUsage(ctx, acct.ID)
		if err != nil {
			return nil, err
		}

		if acct.DailyCap != nil && dayUsage+amountRef > *acct.DailyCap {
			f.log.Debug().
				Str("provider_id", acct.ID).
				Int64("day_usage", dayUsage).
				Int64("daily_cap", *acct.DailyCap).
				Msg("provider skipped: daily cap")
			continue
		}
		if acct.MonthlyCap != nil && monthUsage+amountRef > *acct.MonthlyCap {
			f.log.Debug().
				Str("provider_id", acct.ID).
				Int64("month_usage", monthUsage).
				Int64("monthly_cap", *acct.MonthlyCap).
				Msg("provider skipped: monthly cap")
			continue
		}
		if !f.health.IsAcceptingCharges(ctx, &acct) {
			f.log.Debug().Str("provider_id", acct.ID).Msg("provider skipped: not accepting charges")
			continue
		}

		candidates = append(candidates, ScoredCandidate{
			Account:          acct,
			BusinessDayUsage: dayUsage,
			MonthUsage:       monthUsage,
			AmountRef:        amountRef,
		})
	}
	return candidates, nil
}
