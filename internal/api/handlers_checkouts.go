package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farhan/payroute/internal/models"
	"github.com/farhan/payroute/internal/routing"
	"github.com/farhan/payroute/internal/storage"
)

type CheckoutHandler struct {
	store   storage.Storage
	cascade *routing.Cascade
	sticky  *routing.Sticky
	ttl     time.Duration
}

func NewCheckoutHandler(store storage.Storage, cascade *routing.Cascade, sticky *routing.Sticky, ttl time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		store:   store,
		cascade: cascade,
		sticky:  sticky,
		ttl:     ttl,
	}
}

type createCheckoutRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	merchant := MerchantFromContext(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if req.Currency == "" {
		writeError(w, http.StatusBadRequest, "currency is required")
		return
	}

	now := time.Now().UTC()
	checkout := &models.Checkout{
		ID:         models.NewID("chk"),
		MerchantID: merchant.ID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		ExpiresAt:  now.Add(h.ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.CreateCheckout(r.Context(), checkout); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create checkout")
		return
	}

	writeJSON(w, http.StatusCreated, checkout)
}

// owned fetches the checkout and checks it belongs to the calling merchant.
func (h *CheckoutHandler) owned(w http.ResponseWriter, r *http.Request) *models.Checkout {
	merchant := MerchantFromContext(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	id := chi.URLParam(r, "id")
	checkout, err := h.store.GetCheckout(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get checkout")
		return nil
	}
	if checkout == nil || checkout.MerchantID != merchant.ID {
		writeError(w, http.StatusNotFound, "checkout not found")
		return nil
	}
	return checkout
}

func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	checkout := h.owned(w, r)
	if checkout == nil {
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

type assignResponse struct {
	CheckoutID string `json:"checkout_id"`
	ProviderID string `json:"provider_id"`
	Kind       string `json:"kind"`
	PublicKey  string `json:"public_key"`
}

// Assign binds the checkout to a provider account and returns only the
// public-facing credential, so client SDKs can initialize before any money
// moves. Polling this endpoint always returns the same account.
func (h *CheckoutHandler) Assign(w http.ResponseWriter, r *http.Request) {
	checkout := h.owned(w, r)
	if checkout == nil {
		return
	}

	account, err := h.sticky.EnsureAssigned(r.Context(), checkout.ID)
	if err != nil {
		writeRoutingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assignResponse{
		CheckoutID: checkout.ID,
		ProviderID: account.ID,
		Kind:       account.Kind,
		PublicKey:  account.PublicKey,
	})
}

type payResponse struct {
	CheckoutID  string `json:"checkout_id"`
	ProviderID  string `json:"provider_id"`
	ProviderRef string `json:"provider_ref"`
	AttemptID   string `json:"attempt_id"`
	Attempts    int    `json:"attempts"`
	Status      string `json:"status"`
}

func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	checkout := h.owned(w, r)
	if checkout == nil {
		return
	}
	if checkout.Expired(time.Now().UTC()) {
		writeError(w, http.StatusGone, "checkout expired")
		return
	}

	result, err := h.cascade.Execute(r.Context(), checkout.MerchantID, checkout.Amount, checkout.Currency, checkout.ID)
	if err != nil {
		writeRoutingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payResponse{
		CheckoutID:  checkout.ID,
		ProviderID:  result.Account.ID,
		ProviderRef: result.ProviderRef,
		AttemptID:   result.AttemptID,
		Attempts:    result.Attempts,
		Status:      string(models.AttemptSuccess),
	})
}

func (h *CheckoutHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	checkout := h.owned(w, r)
	if checkout == nil {
		return
	}

	attempts, err := h.store.ListAttemptsByCheckout(r.Context(), checkout.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}
