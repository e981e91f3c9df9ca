package routing

import (
	"context"
	"time"

	"github.com/farhan/payroute/internal/models"
)

// Store is the slice of the storage layer the routing engine touches. The
// engine is stateless per call: every decision re-reads the attempt ledger
// through this interface.
type Store interface {
	ListLinkedProviders(ctx context.Context, merchantID string) ([]models.ProviderAccount, error)
	GetProvider(ctx context.Context, id string) (*models.ProviderAccount, error)
	GetPolicy(ctx context.Context, merchantID string) (*models.RoutingPolicy, error)

	GetCheckout(ctx context.Context, id string) (*models.Checkout, error)
	AssignCheckoutProvider(ctx context.Context, id, providerID string) error

	CreateAttempt(ctx context.Context, a *models.Attempt) error
	UpdateAttemptStatus(ctx context.Context, id string, status models.AttemptStatus, providerRef, failureReason string) error
	SumSuccessfulAmount(ctx context.Context, providerID string, from, to time.Time) (int64, error)
	RecentAttemptsByCheckout(ctx context.Context, checkoutID string, limit int) ([]models.Attempt, error)
}

// HealthChecker reports whether a provider account can currently accept
// charges (cached, fail-closed).
type HealthChecker interface {
	IsAcceptingCharges(ctx context.Context, account *models.ProviderAccount) bool
}

// CurrencyConverter normalizes an amount into the reference currency's
// minor units.
type CurrencyConverter interface {
	ToReference(ctx context.Context, amount int64, currency string) int64
}

// Charger performs the actual external charge call. A nil error means the
// charge went through; the returned string is the provider's reference.
type Charger interface {
	Charge(ctx context.Context, account *models.ProviderAccount, amount int64, currency string) (string, error)
}
