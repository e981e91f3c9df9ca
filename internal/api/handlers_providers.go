package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farhan/payroute/internal/models"
	"github.com/farhan/payroute/internal/storage"
)

type ProviderHandler struct {
	store storage.Storage
}

func NewProviderHandler(store storage.Storage) *ProviderHandler {
	return &ProviderHandler{store: store}
}

type providerRequest struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	PublicKey  string `json:"public_key"`
	SecretKey  string `json:"secret_key"`
	DailyCap   *int64 `json:"daily_cap"`
	MonthlyCap *int64 `json:"monthly_cap"`
}

func validCaps(req providerRequest) bool {
	if req.DailyCap != nil && *req.DailyCap < 0 {
		return false
	}
	if req.MonthlyCap != nil && *req.MonthlyCap < 0 {
		return false
	}
	return true
}

func (h *ProviderHandler) Create(w http.ResponseWriter, r *http.Request) {
	merchant := MerchantFromContext(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "name and kind are required")
		return
	}
	if !validCaps(req) {
		writeError(w, http.StatusBadRequest, "caps must be non-negative")
		return
	}

	now := time.Now().UTC()
	account := &models.ProviderAccount{
		ID:         models.NewID("acct"),
		MerchantID: merchant.ID,
		Name:       req.Name,
		Kind:       req.Kind,
		PublicKey:  req.PublicKey,
		SecretKey:  req.SecretKey,
		Enabled:    true,
		DailyCap:   req.DailyCap,
		MonthlyCap: req.MonthlyCap,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.CreateProvider(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create provider account")
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// owned fetches the account and checks it belongs to the calling merchant.
func (h *ProviderHandler) owned(w http.ResponseWriter, r *http.Request) *models.ProviderAccount {
	merchant := MerchantFromContext(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	id := chi.URLParam(r, "id")
	account, err := h.store.GetProvider(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get provider account")
		return nil
	}
	if account == nil || account.MerchantID != merchant.ID {
		writeError(w, http.StatusNotFound, "provider account not found")
		return nil
	}
	return account
}

func (h *ProviderHandler) Get(w http.ResponseWriter, r *http.Request) {
	account := h.owned(w, r)
	if account == nil {
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	merchant := MerchantFromContext(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accounts, err := h.store.ListProviders(r.Context(), merchant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list provider accounts")
		return
	}
	if accounts == nil {
		accounts = []models.ProviderAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *ProviderHandler) Update(w http.ResponseWriter, r *http.Request) {
	account := h.owned(w, r)
	if account == nil {
		return
	}

	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validCaps(req) {
		writeError(w, http.StatusBadRequest, "caps must be non-negative")
		return
	}

	if req.Name != "" {
		account.Name = req.Name
	}
	if req.Kind != "" {
		account.Kind = req.Kind
	}
	if req.PublicKey != "" {
		account.PublicKey = req.PublicKey
	}
	if req.SecretKey != "" {
		account.SecretKey = req.SecretKey
	}
	account.DailyCap = req.DailyCap
	account.MonthlyCap = req.MonthlyCap

	if err := h.store.UpdateProvider(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update provider account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *ProviderHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	account := h.owned(w, r)
	if account == nil {
		return
	}

	newEnabled := !account.Enabled
	if err := h.store.ToggleProvider(r.Context(), account.ID, newEnabled); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle provider account")
		return
	}

	account.Enabled = newEnabled
	writeJSON(w, http.StatusOK, account)
}

// Archive soft-deletes: attempts still reference the account, so it is
// never removed from storage.
func (h *ProviderHandler) Archive(w http.ResponseWriter, r *http.Request) {
	account := h.owned(w, r)
	if account == nil {
		return
	}

	if err := h.store.ArchiveProvider(r.Context(), account.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to archive provider account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
