package models

import "time"

// ProviderAccount is one payment-processing credential set a merchant can
// route charges through. Caps are expressed in the reference currency's
// minor unit; nil means uncapped. The routing engine only ever mutates the
// health-cache fields (AcceptingCharges, HealthCheckedAt).
type ProviderAccount struct {
	ID               string     `json:"id"`
	MerchantID       string     `json:"merchant_id"`
	Name             string     `json:"name"`
	Kind             string     `json:"kind"`
	PublicKey        string     `json:"public_key"`
	SecretKey        string     `json:"secret_key,omitempty"`
	Enabled          bool       `json:"enabled"`
	Archived         bool       `json:"archived"`
	DailyCap         *int64     `json:"daily_cap,omitempty"`
	MonthlyCap       *int64     `json:"monthly_cap,omitempty"`
	AcceptingCharges bool       `json:"accepting_charges"`
	HealthCheckedAt  *time.Time `json:"health_checked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
