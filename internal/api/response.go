package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/farhan/payroute/internal/routing"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeRoutingError maps the routing taxonomy to HTTP statuses so callers
// can distinguish "no capacity right now" from "this payment is done
// failing" from "stop retrying this checkout".
func writeRoutingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, routing.ErrNoCandidates):
		writeError(w, http.StatusServiceUnavailable, "no provider account can take this charge right now")
	case errors.Is(err, routing.ErrCircuitOpen):
		writeError(w, http.StatusTooManyRequests, "too many recent failed attempts, contact support")
	case errors.Is(err, routing.ErrAllAttemptsFailed):
		writeError(w, http.StatusPaymentRequired, "all charge attempts failed")
	case errors.Is(err, routing.ErrCheckoutNotFound):
		writeError(w, http.StatusNotFound, "checkout not found")
	case errors.Is(err, routing.ErrCheckoutExpired):
		writeError(w, http.StatusGone, "checkout expired")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
