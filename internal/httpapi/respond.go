package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"authcore/internal/auth"
)

type errorBody struct {
	Error             string `json:"error"`
	LockedUntil       string `json:"lockedUntil,omitempty"`
	TwoFactorRequired bool   `json:"twoFactorRequired,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps typed auth outcomes onto the HTTP contract. Anything
// without a kind is an internal failure and stays opaque to clients.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	outcome, ok := auth.AsOutcome(err)
	if !ok {
		log.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
		return
	}

	body := errorBody{Error: outcome.Message}
	var status int
	switch outcome.Kind {
	case auth.KindUnauthorized:
		status = http.StatusUnauthorized
	case auth.KindTwoFactorRequired:
		status = http.StatusUnauthorized
		body.TwoFactorRequired = true
	case auth.KindLocked:
		status = http.StatusLocked
		body.LockedUntil = outcome.LockedUntil.UTC().Format(time.RFC3339)
	case auth.KindConflict:
		status = http.StatusConflict
	case auth.KindValidation:
		status = http.StatusUnprocessableEntity
	case auth.KindRateLimited:
		status = http.StatusTooManyRequests
		retry := int(time.Until(outcome.LockedUntil).Seconds())
		if retry < 1 {
			retry = 1
		}
		body.RetryAfterSeconds = retry
	default:
		status = http.StatusInternalServerError
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, log *zap.Logger, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(dst); err != nil {
		writeError(w, log, auth.ErrValidation("request body is not valid JSON"))
		return false
	}
	return true
}
