package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, trialerrors.New(trialerrors.ErrCodeSuperseded, "", nil)):
		return http.StatusConflict
	case trialerrors.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		attrs := []any{slog.String("request_id", requestIDFromContext(r.Context()))}
		for k, v := range trialerrors.FormatForLog(err) {
			attrs = append(attrs, slog.Any(k, v))
		}
		slog.Error("request_failed", attrs...)
	}
	body, mErr := trialerrors.FormatJSON(err)
	if mErr != nil {
		body = []byte(`{"code":"` + trialerrors.ErrCodeInternal + `"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append([]byte(`{"error":`), append(body, '}', '\n')...))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return trialerrors.New(trialerrors.ErrCodeInvalidInput, "invalid JSON request body", err)
	}
	return nil
}
