package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farhan/payroute/internal/models"
	"github.com/farhan/payroute/internal/storage"
)

type MerchantHandler struct {
	store storage.Storage
}

func NewMerchantHandler(store storage.Storage) *MerchantHandler {
	return &MerchantHandler{store: store}
}

type createMerchantRequest struct {
	Name string `json:"name"`
}

func (h *MerchantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	merchant := &models.Merchant{
		ID:        models.NewID("mch"),
		Name:      req.Name,
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateMerchant(r.Context(), merchant); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create merchant")
		return
	}

	writeJSON(w, http.StatusCreated, merchant)
}

func (h *MerchantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	merchant, err := h.store.GetMerchant(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get merchant")
		return
	}
	if merchant == nil {
		writeError(w, http.StatusNotFound, "merchant not found")
		return
	}
	writeJSON(w, http.StatusOK, merchant)
}

func (h *MerchantHandler) List(w http.ResponseWriter, r *http.Request) {
	merchants, err := h.store.ListMerchants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list merchants")
		return
	}
	if merchants == nil {
		merchants = []models.Merchant{}
	}
	writeJSON(w, http.StatusOK, merchants)
}

func (h *MerchantHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	merchant, err := h.store.GetMerchant(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get merchant")
		return
	}
	if merchant == nil {
		writeError(w, http.StatusNotFound, "merchant not found")
		return
	}

	newKey := models.NewAPIKey()
	if err := h.store.RotateMerchantKey(r.Context(), id, newKey); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate key")
		return
	}

	merchant.APIKey = newKey
	writeJSON(w, http.StatusOK, merchant)
}
