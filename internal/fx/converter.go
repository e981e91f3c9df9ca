package fx

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/clock"
)

// RateFetcher returns multipliers that convert one minor unit of each
// listed currency into the base currency.
type RateFetcher interface {
	FetchRates(ctx context.Context, base string) (map[string]float64, error)
}

// Converter normalizes amounts into the reference currency so volume caps
// can be compared across currencies. The rate table is replaced wholesale
// on expiry; a failed refresh degrades to a 1:1 rate rather than blocking
// the routing decision, and is logged as a correctness risk.
type Converter struct {
	fetcher RateFetcher
	clock   clock.Clock
	ttl     time.Duration
	base    string
	log     zerolog.Logger

	mu        sync.Mutex
	rates     map[string]float64
	fetchedAt time.Time
}

func NewConverter(fetcher RateFetcher, base string, ttl time.Duration, clk clock.Clock, log zerolog.Logger) *Converter {
	return &Converter{
		fetcher: fetcher,
		clock:   clk,
		ttl:     ttl,
		base:    base,
		log:     log,
	}
}

// ToReference converts amount minor units of currency into the reference
// currency's minor units. Same-currency amounts pass through untouched.
func (c *Converter) ToReference(ctx context.Context, amount int64, currency string) int64 {
	if currency == c.base {
		return amount
	}

	rate, ok := c.rate(ctx, currency)
	if !ok {
		c.log.Warn().
			Str("currency", currency).
			Str("base", c.base).
			Msg("exchange rate unavailable, assuming 1:1 for cap accounting")
		return amount
	}
	return int64(math.Round(float64(amount) * rate))
}

func (c *Converter) rate(ctx context.Context, currency string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.rates == nil || now.Sub(c.fetchedAt) > c.ttl {
		fresh, err := c.fetcher.FetchRates(ctx, c.base)
		if err != nil {
			c.log.Warn().Err(err).Msg("exchange rate refresh failed")
			return 0, false
		}
		c.rates = fresh
		c.fetchedAt = now
	}

	r, ok := c.rates[currency]
	if !ok || r <= 0 {
		return 0, false
	}
	return r, true
}
