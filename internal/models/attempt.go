package models

import "time"

type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// Attempt is one try at charging a provider account. The attempt ledger is
// append-only and is the only source of truth for usage accounting:
// AmountRef carries the amount converted to the reference currency at
// record time so cap windows can be summed directly.
type Attempt struct {
	ID            string        `json:"id"`
	MerchantID    string        `json:"merchant_id"`
	CheckoutID    string        `json:"checkout_id"`
	ProviderID    string        `json:"provider_id"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	AmountRef     int64         `json:"amount_ref"`
	Status        AttemptStatus `json:"status"`
	AttemptNumber int           `json:"attempt_number"`
	Fallback      bool          `json:"fallback"`
	ProviderRef   string        `json:"provider_ref,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
