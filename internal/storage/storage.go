package storage

import (
	"context"
	"time"

	"github.com/farhan/payroute/internal/models"
)

type Storage interface {
	// Merchants
	CreateMerchant(ctx context.Context, m *models.Merchant) error
	GetMerchant(ctx context.Context, id string) (*models.Merchant, error)
	GetMerchantByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error)
	ListMerchants(ctx context.Context) ([]models.Merchant, error)
	RotateMerchantKey(ctx context.Context, id, newKey string) error

	// Provider accounts
	CreateProvider(ctx context.Context, p *models.ProviderAccount) error
	GetProvider(ctx context.Context, id string) (*models.ProviderAccount, error)
	ListProviders(ctx context.Context, merchantID string) ([]models.ProviderAccount, error)
	ListLinkedProviders(ctx context.Context, merchantID string) ([]models.ProviderAccount, error)
	UpdateProvider(ctx context.Context, p *models.ProviderAccount) error
	ToggleProvider(ctx context.Context, id string, enabled bool) error
	ArchiveProvider(ctx context.Context, id string) error
	UpdateProviderHealth(ctx context.Context, id string, accepting bool, checkedAt time.Time) error

	// Routing policies
	GetPolicy(ctx context.Context, merchantID string) (*models.RoutingPolicy, error)
	PutPolicy(ctx context.Context, p *models.RoutingPolicy) error

	// Checkouts
	CreateCheckout(ctx context.Context, c *models.Checkout) error
	GetCheckout(ctx context.Context, id string) (*models.Checkout, error)
	AssignCheckoutProvider(ctx context.Context, id, providerID string) error

	// Attempt ledger
	CreateAttempt(ctx context.Context, a *models.Attempt) error
	UpdateAttemptStatus(ctx context.Context, id string, status models.AttemptStatus, providerRef, failureReason string) error
	SumSuccessfulAmount(ctx context.Context, providerID string, from, to time.Time) (int64, error)
	RecentAttemptsByCheckout(ctx context.Context, checkoutID string, limit int) ([]models.Attempt, error)
	ListAttemptsByCheckout(ctx context.Context, checkoutID string) ([]models.Attempt, error)

	// Stats
	GetStats(ctx context.Context, merchantID string) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalCheckouts   int64   `json:"total_checkouts"`
	TotalAttempts    int64   `json:"total_attempts"`
	SuccessCount     int64   `json:"success_count"`
	FailedCount      int64   `json:"failed_count"`
	PendingCount     int64   `json:"pending_count"`
	SuccessRate      float64 `json:"success_rate"`
	SuccessVolumeRef int64   `json:"success_volume_ref"`
	TotalProviders   int64   `json:"total_providers"`
	ActiveProviders  int64   `json:"active_providers"`
}
