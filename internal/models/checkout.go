package models

import "time"

// Checkout is the unit of stickiness: once a provider account is assigned,
// repeated polls reuse it until the checkout expires.
type Checkout struct {
	ID                 string    `json:"id"`
	MerchantID         string    `json:"merchant_id"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	AssignedProviderID string    `json:"assigned_provider_id,omitempty"`
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (c *Checkout) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
