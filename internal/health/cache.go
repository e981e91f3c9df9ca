package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/clock"
	"github.com/farhan/payroute/internal/models"
)

// StatusChecker probes a provider account's own control API for whether it
// can currently accept charges.
type StatusChecker interface {
	CheckAccountStatus(ctx context.Context, account *models.ProviderAccount) (bool, error)
}

// Store is the slice of storage the cache writes its verdicts through to,
// so the provider record reflects the last known health.
type Store interface {
	UpdateProviderHealth(ctx context.Context, id string, accepting bool, checkedAt time.Time) error
}

type entry struct {
	accepting bool
	checkedAt time.Time
}

// Cache answers IsAcceptingCharges from a short-TTL cache of live status
// checks. A failed check counts as not accepting and is cached like any
// other result, so a failing provider is probed at most once per TTL.
type Cache struct {
	checker StatusChecker
	store   Store
	clock   clock.Clock
	ttl     time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(checker StatusChecker, store Store, clk clock.Clock, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		checker: checker,
		store:   store,
		clock:   clk,
		ttl:     ttl,
		log:     log,
		entries: make(map[string]entry),
	}
}

func (c *Cache) IsAcceptingCharges(ctx context.Context, account *models.ProviderAccount) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if e, ok := c.entries[account.ID]; ok && now.Sub(e.checkedAt) < c.ttl {
		return e.accepting
	}

	accepting, err := c.checker.CheckAccountStatus(ctx, account)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("provider_id", account.ID).
			Msg("account status check failed, treating provider as not accepting")
		accepting = false
	}

	c.entries[account.ID] = entry{accepting: accepting, checkedAt: now}

	if err := c.store.UpdateProviderHealth(ctx, account.ID, accepting, now); err != nil {
		c.log.Error().
			Err(err).
			Str("provider_id", account.ID).
			Msg("failed to persist provider health")
	}

	return accepting
}
