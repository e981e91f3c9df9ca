package routing

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/models"
)

// Strategy picks one candidate: least-loaded in automatic mode, weighted
// random in manual mode. A fallback-priority sequence, when configured,
// takes precedence on retries.
type Strategy struct {
	filter *Filter
	store  Store
	log    zerolog.Logger
}

func NewStrategy(filter *Filter, store Store, log zerolog.Logger) *Strategy {
	return &Strategy{
		filter: filter,
		store:  store,
		log:    log,
	}
}

// SelectNext returns the candidate to try for this attempt, or
// ErrNoCandidates when nothing is eligible. When checkoutID is non-empty,
// manual-mode picks are deterministic: the same checkout always maps to the
// same account for the same candidate set and weights, so repeated polls
// reproduce the choice without persisting it.
func (s *Strategy) SelectNext(ctx context.Context, merchantID string, amount int64, currency string, excluded map[string]bool, checkoutID string) (*ScoredCandidate, error) {
	candidates, err := s.filter.Candidates(ctx, merchantID, amount, currency, excluded)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	policy, err := s.store.GetPolicy(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		policy = models.DefaultPolicy(merchantID)
	}

	// On a retry, a configured fallback-priority sequence wins: first
	// listed account still among the candidates gets the attempt.
	if len(excluded) > 0 && len(policy.FallbackPriority) > 0 {
		byID := make(map[string]int, len(candidates))
		for i, c := range candidates {
			byID[c.Account.ID] = i
		}
		for _, id := range policy.FallbackPriority {
			if i, ok := byID[id]; ok {
				return &candidates[i], nil
			}
		}
	}

	if policy.Mode == models.ModeManual {
		return s.weightedPick(candidates, policy, checkoutID), nil
	}
	return leastLoaded(candidates), nil
}

// leastLoaded spreads volume evenly: lowest business-day usage wins, ties
// broken by account ID so the result is stable.
func leastLoaded(candidates []ScoredCandidate) *ScoredCandidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].BusinessDayUsage != candidates[j].BusinessDayUsage {
			return candidates[i].BusinessDayUsage < candidates[j].BusinessDayUsage
		}
		return candidates[i].Account.ID < candidates[j].Account.ID
	})
	return &candidates[0]
}

// weightedPick scores each candidate by headroom ratio times its configured
// weight and picks a point in [0, totalScore). With a checkout ID the point
// is derived by hashing the ID; without one it is random.
func (s *Strategy) weightedPick(candidates []ScoredCandidate, policy *models.RoutingPolicy, checkoutID string) *ScoredCandidate {
	// Stable walk order regardless of how the candidates arrived.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Account.ID < candidates[j].Account.ID
	})

	scores := make([]float64, len(candidates))
	total := 0.0
	for i, c := range candidates {
		weight := 1.0
		if w, ok := policy.Weights[c.Account.ID]; ok {
			weight = w
		}
		scores[i] = c.HeadroomRatio() * weight
		total += scores[i]
	}

	if total <= 0 {
		return &candidates[0]
	}

	var point float64
	if checkoutID != "" {
		point = seedFraction(checkoutID) * total
	} else {
		point = rand.Float64() * total
	}

	cumulative := 0.0
	for i := range candidates {
		cumulative += scores[i]
		if point < cumulative {
			return &candidates[i]
		}
	}
	return &candidates[len(candidates)-1]
}

// seedFraction maps a checkout ID onto [0, 1) deterministically. The top 53
// bits of the hash fit exactly in a float64 mantissa.
func seedFraction(checkoutID string) float64 {
	h := fnv.New64a()
	h.Write([]byte(checkoutID))
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}
