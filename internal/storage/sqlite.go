package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/farhan/payroute/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS merchants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS provider_accounts (
			id TEXT PRIMARY KEY,
			merchant_id TEXT NOT NULL REFERENCES merchants(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			public_key TEXT NOT NULL DEFAULT '',
			secret_key TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			archived INTEGER NOT NULL DEFAULT 0,
			daily_cap INTEGER,
			monthly_cap INTEGER,
			accepting_charges INTEGER NOT NULL DEFAULT 0,
			health_checked_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS routing_policies (
			merchant_id TEXT PRIMARY KEY REFERENCES merchants(id) ON DELETE CASCADE,
			mode TEXT NOT NULL DEFAULT 'automatic',
			fallback_enabled INTEGER NOT NULL DEFAULT 1,
			max_retries INTEGER NOT NULL DEFAULT 2,
			fallback_priority TEXT NOT NULL DEFAULT '[]',
			weights TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS checkouts (
			id TEXT PRIMARY KEY,
			merchant_id TEXT NOT NULL REFERENCES merchants(id) ON DELETE CASCADE,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			assigned_provider_id TEXT NOT NULL DEFAULT '',
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			merchant_id TEXT NOT NULL REFERENCES merchants(id) ON DELETE CASCADE,
			checkout_id TEXT NOT NULL DEFAULT '',
			provider_id TEXT NOT NULL REFERENCES provider_accounts(id),
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			amount_ref INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempt_number INTEGER NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			provider_ref TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_merchants_api_key ON merchants(api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_provider_accounts_merchant ON provider_accounts(merchant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_checkouts_merchant ON checkouts(merchant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_checkout ON attempts(checkout_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_usage ON attempts(provider_id, status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_merchant ON attempts(merchant_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Merchants ---

func (s *SQLiteStorage) CreateMerchant(ctx context.Context, m *models.Merchant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO merchants (id, name, api_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.APIKey, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetMerchant(ctx context.Context, id string) (*models.Merchant, error) {
	var m models.Merchant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM merchants WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.APIKey, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &m, err
}

func (s *SQLiteStorage) GetMerchantByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	var m models.Merchant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM merchants WHERE api_key = ?`, apiKey,
	).Scan(&m.ID, &m.Name, &m.APIKey, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &m, err
}

func (s *SQLiteStorage) ListMerchants(ctx context.Context) ([]models.Merchant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM merchants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []models.Merchant
	for rows.Next() {
		var m models.Merchant
		if err := rows.Scan(&m.ID, &m.Name, &m.APIKey, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

func (s *SQLiteStorage) RotateMerchantKey(ctx context.Context, id, newKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE merchants SET api_key = ?, updated_at = ? WHERE id = ?`,
		newKey, time.Now().UTC(), id,
	)
	return err
}

// --- Provider accounts ---

const providerColumns = `id, merchant_id, name, kind, public_key, secret_key, enabled, archived,
	daily_cap, monthly_cap, accepting_charges, health_checked_at, created_at, updated_at`

func (s *SQLiteStorage) CreateProvider(ctx context.Context, p *models.ProviderAccount) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_accounts (`+providerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MerchantID, p.Name, p.Kind, p.PublicKey, p.SecretKey,
		boolToInt(p.Enabled), boolToInt(p.Archived),
		nullableInt64(p.DailyCap), nullableInt64(p.MonthlyCap),
		boolToInt(p.AcceptingCharges), nullableTime(p.HealthCheckedAt),
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanProvider(row interface{ Scan(...interface{}) error }) (*models.ProviderAccount, error) {
	var p models.ProviderAccount
	var enabled, archived, accepting int
	var dailyCap, monthlyCap sql.NullInt64
	var checkedAt sql.NullTime
	err := row.Scan(&p.ID, &p.MerchantID, &p.Name, &p.Kind, &p.PublicKey, &p.SecretKey,
		&enabled, &archived, &dailyCap, &monthlyCap, &accepting, &checkedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Enabled = enabled == 1
	p.Archived = archived == 1
	p.AcceptingCharges = accepting == 1
	if dailyCap.Valid {
		p.DailyCap = &dailyCap.Int64
	}
	if monthlyCap.Valid {
		p.MonthlyCap = &monthlyCap.Int64
	}
	if checkedAt.Valid {
		t := checkedAt.Time
		p.HealthCheckedAt = &t
	}
	return &p, nil
}

func (s *SQLiteStorage) GetProvider(ctx context.Context, id string) (*models.ProviderAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM provider_accounts WHERE id = ?`, id)
	p, err := s.scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStorage) ListProviders(ctx context.Context, merchantID string) ([]models.ProviderAccount, error) {
	return s.queryProviders(ctx,
		`SELECT `+providerColumns+` FROM provider_accounts WHERE merchant_id = ? ORDER BY id`, merchantID)
}

// ListLinkedProviders returns the accounts the routing engine may consider:
// enabled and not archived. The fixed ID ordering keeps selection
// deterministic for equal scores.
func (s *SQLiteStorage) ListLinkedProviders(ctx context.Context, merchantID string) ([]models.ProviderAccount, error) {
	return s.queryProviders(ctx,
		`SELECT `+providerColumns+` FROM provider_accounts
		 WHERE merchant_id = ? AND enabled = 1 AND archived = 0 ORDER BY id`, merchantID)
}

func (s *SQLiteStorage) queryProviders(ctx context.Context, query string, args ...interface{}) ([]models.ProviderAccount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.ProviderAccount
	for rows.Next() {
		p, err := s.scanProvider(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *p)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStorage) UpdateProvider(ctx context.Context, p *models.ProviderAccount) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE provider_accounts SET name = ?, kind = ?, public_key = ?, secret_key = ?,
		 daily_cap = ?, monthly_cap = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Kind, p.PublicKey, p.SecretKey,
		nullableInt64(p.DailyCap), nullableInt64(p.MonthlyCap),
		time.Now().UTC(), p.ID,
	)
	return err
}

func (s *SQLiteStorage) ToggleProvider(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE provider_accounts SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStorage) ArchiveProvider(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE provider_accounts SET archived = 1, enabled = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStorage) UpdateProviderHealth(ctx context.Context, id string, accepting bool, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE provider_accounts SET accepting_charges = ?, health_checked_at = ?, updated_at = ? WHERE id = ?`,
		boolToInt(accepting), checkedAt, time.Now().UTC(), id,
	)
	return err
}

// --- Routing policies ---

func (s *SQLiteStorage) GetPolicy(ctx context.Context, merchantID string) (*models.RoutingPolicy, error) {
	var p models.RoutingPolicy
	var fallbackEnabled int
	var priority, weights string
	err := s.db.QueryRowContext(ctx,
		`SELECT merchant_id, mode, fallback_enabled, max_retries, fallback_priority, weights, updated_at
		 FROM routing_policies WHERE merchant_id = ?`, merchantID,
	).Scan(&p.MerchantID, &p.Mode, &fallbackEnabled, &p.MaxRetries, &priority, &weights, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.FallbackEnabled = fallbackEnabled == 1
	json.Unmarshal([]byte(priority), &p.FallbackPriority)
	json.Unmarshal([]byte(weights), &p.Weights)
	return &p, nil
}

func (s *SQLiteStorage) PutPolicy(ctx context.Context, p *models.RoutingPolicy) error {
	priority, _ := json.Marshal(p.FallbackPriority)
	weights, _ := json.Marshal(p.Weights)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routing_policies (merchant_id, mode, fallback_enabled, max_retries, fallback_priority, weights, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(merchant_id) DO UPDATE SET
			mode = excluded.mode,
			fallback_enabled = excluded.fallback_enabled,
			max_retries = excluded.max_retries,
			fallback_priority = excluded.fallback_priority,
			weights = excluded.weights,
			updated_at = excluded.updated_at`,
		p.MerchantID, p.Mode, boolToInt(p.FallbackEnabled), p.MaxRetries,
		string(priority), string(weights), time.Now().UTC(),
	)
	return err
}

// --- Checkouts ---

func (s *SQLiteStorage) CreateCheckout(ctx context.Context, c *models.Checkout) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkouts (id, merchant_id, amount, currency, assigned_provider_id, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MerchantID, c.Amount, c.Currency, c.AssignedProviderID, c.ExpiresAt, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetCheckout(ctx context.Context, id string) (*models.Checkout, error) {
	var c models.Checkout
	err := s.db.QueryRowContext(ctx,
		`SELECT id, merchant_id, amount, currency, assigned_provider_id, expires_at, created_at, updated_at
		 FROM checkouts WHERE id = ?`, id,
	).Scan(&c.ID, &c.MerchantID, &c.Amount, &c.Currency, &c.AssignedProviderID, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (s *SQLiteStorage) AssignCheckoutProvider(ctx context.Context, id, providerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE checkouts SET assigned_provider_id = ?, updated_at = ? WHERE id = ?`,
		providerID, time.Now().UTC(), id,
	)
	return err
}

// --- Attempt ledger ---

const attemptColumns = `id, merchant_id, checkout_id, provider_id, amount, currency, amount_ref,
	status, attempt_number, fallback, provider_ref, failure_reason, created_at, updated_at`

func (s *SQLiteStorage) CreateAttempt(ctx context.Context, a *models.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (`+attemptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MerchantID, a.CheckoutID, a.ProviderID, a.Amount, a.Currency, a.AmountRef,
		a.Status, a.AttemptNumber, boolToInt(a.Fallback), a.ProviderRef, a.FailureReason,
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) UpdateAttemptStatus(ctx context.Context, id string, status models.AttemptStatus, providerRef, failureReason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status = ?, provider_ref = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
		status, providerRef, failureReason, time.Now().UTC(), id,
	)
	return err
}

// SumSuccessfulAmount totals reference-currency minor units of successful
// attempts in [from, to). Usage windows are always recomputed from the
// ledger; nothing is cached here.
func (s *SQLiteStorage) SumSuccessfulAmount(ctx context.Context, providerID string, from, to time.Time) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(amount_ref) FROM attempts
		 WHERE provider_id = ? AND status = 'success' AND created_at >= ? AND created_at < ?`,
		providerID, from, to,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func (s *SQLiteStorage) RecentAttemptsByCheckout(ctx context.Context, checkoutID string, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE checkout_id = ?
		 ORDER BY created_at DESC, attempt_number DESC LIMIT ?`, checkoutID, limit)
}

func (s *SQLiteStorage) ListAttemptsByCheckout(ctx context.Context, checkoutID string) ([]models.Attempt, error) {
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE checkout_id = ?
		 ORDER BY created_at, attempt_number`, checkoutID)
}

func (s *SQLiteStorage) queryAttempts(ctx context.Context, query string, args ...interface{}) ([]models.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var fallback int
		if err := rows.Scan(&a.ID, &a.MerchantID, &a.CheckoutID, &a.ProviderID,
			&a.Amount, &a.Currency, &a.AmountRef, &a.Status, &a.AttemptNumber,
			&fallback, &a.ProviderRef, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Fallback = fallback == 1
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context, merchantID string) (*Stats, error) {
	stats := &Stats{}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkouts WHERE merchant_id = ?`, merchantID).Scan(&stats.TotalCheckouts)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE merchant_id = ?`, merchantID).Scan(&stats.TotalAttempts)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE merchant_id = ? AND status = 'success'`, merchantID).Scan(&stats.SuccessCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE merchant_id = ? AND status = 'failed'`, merchantID).Scan(&stats.FailedCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE merchant_id = ? AND status = 'pending'`, merchantID).Scan(&stats.PendingCount)
	s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_ref), 0) FROM attempts WHERE merchant_id = ? AND status = 'success'`, merchantID).Scan(&stats.SuccessVolumeRef)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM provider_accounts WHERE merchant_id = ? AND archived = 0`, merchantID).Scan(&stats.TotalProviders)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM provider_accounts WHERE merchant_id = ? AND archived = 0 AND enabled = 1`, merchantID).Scan(&stats.ActiveProviders)

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalAttempts) * 100
	}

	return stats, nil
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
