package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/farhan/payroute/internal/models"
)

type chargeRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PublicKey string `json:"public_key"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	AcceptingCharges bool `json:"accepting_charges"`
}

// Client talks to the provider gateway: one opaque charge call plus the
// account-status probe. Each account gets its own circuit breaker so a
// misbehaving provider API stops being called long before its attempts pile
// up in the ledger.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) breaker(accountID string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[accountID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        accountID,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[accountID] = cb
	return cb
}

// Charge posts one charge through the account's breaker and returns the
// provider's reference ID.
func (c *Client) Charge(ctx context.Context, account *models.ProviderAccount, amount int64, currency string) (string, error) {
	result, err := c.breaker(account.ID).Execute(func() (interface{}, error) {
		return c.doCharge(ctx, account, amount, currency)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doCharge(ctx context.Context, account *models.ProviderAccount, amount int64, currency string) (string, error) {
	payload, _ := json.Marshal(chargeRequest{
		Amount:    amount,
		Currency:  currency,
		PublicKey: account.PublicKey,
	})

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PayRoute/1.0")
	req.Header.Set("Authorization", "Bearer "+account.SecretKey)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	latency := time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("charge declined with status %d: %s", resp.StatusCode, string(body))
	}

	var cr chargeResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("failed to decode charge response: %w", err)
	}

	c.log.Debug().
		Str("provider_id", account.ID).
		Str("provider_ref", cr.ID).
		Int64("latency_ms", latency).
		Msg("charge accepted")

	return cr.ID, nil
}

// CheckAccountStatus asks the provider's control API whether the account
// can currently accept charges.
func (c *Client) CheckAccountStatus(ctx context.Context, account *models.ProviderAccount) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/account", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("User-Agent", "PayRoute/1.0")
	req.Header.Set("Authorization", "Bearer "+account.SecretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status request returned %d", resp.StatusCode)
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return false, fmt.Errorf("failed to decode status response: %w", err)
	}
	return sr.AcceptingCharges, nil
}
