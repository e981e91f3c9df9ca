package models

import "time"

type RoutingMode string

const (
	ModeAutomatic RoutingMode = "automatic"
	ModeManual    RoutingMode = "manual"
)

// RoutingPolicy configures how one merchant's charges are routed across its
// provider accounts. FallbackPriority lists provider account IDs to try, in
// order, when retrying after a failure. Weights (manual mode) must be
// non-negative; unlisted accounts default to weight 1.
type RoutingPolicy struct {
	MerchantID       string             `json:"merchant_id"`
	Mode             RoutingMode        `json:"mode"`
	FallbackEnabled  bool               `json:"fallback_enabled"`
	MaxRetries       int                `json:"max_retries"`
	FallbackPriority []string           `json:"fallback_priority"`
	Weights          map[string]float64 `json:"weights"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// DefaultPolicy is what a merchant gets when no policy has been stored.
func DefaultPolicy(merchantID string) *RoutingPolicy {
	return &RoutingPolicy{
		MerchantID:      merchantID,
		Mode:            ModeAutomatic,
		FallbackEnabled: true,
		MaxRetries:      2,
	}
}
