package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcclellann/lotledger/pkg/ledger"
	"github.com/mcclellann/lotledger/pkg/lock"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrMalformedPaymentAmount),
		errors.Is(err, ledger.ErrInvalidPaymentMethod),
		errors.Is(err, ledger.ErrInvalidSale),
		errors.Is(err, ledger.ErrInvalidLot),
		errors.Is(err, ledger.ErrInvalidPolicy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInsufficientSettlement),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrContractNotActive),
		errors.Is(err, ledger.ErrLotUnavailable):
		return http.StatusConflict
	case errors.Is(err, lock.ErrLockTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError responds with the status matching err. Unexpected errors are logged and
// their details kept out of the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		respondError(w, status, "internal server error")
		return
	}
	respondError(w, status, err.Error())
}
