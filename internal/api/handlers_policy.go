package api

import (
	"encoding/json"
	"net/http"

	"github.com/farhan/payroute/internal/models"
	"github.com/farhan/payroute/internal/storage"
)

type PolicyHandler struct {
	store storage.Storage
}

func NewPolicyHandler(store storage.Storage) *PolicyHandler {
	return &PolicyHandler{store: store}
}

func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	merchant := MerchantFromContext(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	policy, err := h.store.GetPolicy(r.Context(), merchant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get policy")
		return
	}
	if policy == nil {
		policy = models.DefaultPolicy(merchant.ID)
	}
	writeJSON(w, http.StatusOK, policy)
}

type putPolicyRequest struct {
	Mode             models.RoutingMode `json:"mode"`
	FallbackEnabled  bool               `json:"fallback_enabled"`
	MaxRetries       int                `json:"max_retries"`
	FallbackPriority []string           `json:"fallback_priority"`
	Weights          map[string]float64 `json:"weights"`
}

func (h *PolicyHandler) Put(w http.ResponseWriter, r *http.Request) {
	merchant := MerchantFromContext(r.Context())
	if merchant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req putPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode != models.ModeAutomatic && req.Mode != models.ModeManual {
		writeError(w, http.StatusBadRequest, "mode must be automatic or manual")
		return
	}
	if req.MaxRetries < 0 {
		writeError(w, http.StatusBadRequest, "max_retries must be non-negative")
		return
	}
	for id, weight := range req.Weights {
		if weight < 0 {
			writeError(w, http.StatusBadRequest, "weight for "+id+" must be non-negative")
			return
		}
	}

	policy := &models.RoutingPolicy{
		MerchantID:       merchant.ID,
		Mode:             req.Mode,
		FallbackEnabled:  req.FallbackEnabled,
		MaxRetries:       req.MaxRetries,
		FallbackPriority: req.FallbackPriority,
		Weights:          req.Weights,
	}

	if err := h.store.PutPolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store policy")
		return
	}

	writeJSON(w, http.StatusOK, policy)
}
