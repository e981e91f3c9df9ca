package routing

import "errors"

var (
	// ErrNoCandidates means no provider account currently has the headroom
	// and health to take the charge. Recoverable by waiting or raising caps.
	ErrNoCandidates = errors.New("no eligible provider accounts")

	// ErrAllAttemptsFailed means the cascade ran out of attempts without a
	// successful charge.
	ErrAllAttemptsFailed = errors.New("all charge attempts failed")

	// ErrCircuitOpen means the checkout has accumulated too many recent
	// consecutive failures and new cascades are refused.
	ErrCircuitOpen = errors.New("too many recent failed attempts for checkout")

	ErrCheckoutNotFound = errors.New("checkout not found")
	ErrCheckoutExpired  = errors.New("checkout expired")
)
