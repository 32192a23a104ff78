package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tenantledger/ledger"
)

// errorBody is the JSON shape every non-2xx response carries.
type errorBody struct {
	Error string `json:"error"`
}

func authFailure(listener string) error {
	return ledger.Fail(ledger.KindAuth, "api", listener, "invalid credentials", nil)
}

// statusFor is the single point that maps a ledger.Error's Kind to an HTTP
// status code.
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindAuth:
		return http.StatusUnauthorized
	case ledger.KindTenantClosed, ledger.KindTenantUnknown, ledger.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindStoreConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	writeJSON(w, statusFor(kind), errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeError(w, ledger.Fail(ledger.KindValidation, "api", "decodeJSON", "missing request body", nil))
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "payload exceeds configured size ceiling"})
			return false
		}
		writeError(w, ledger.Fail(ledger.KindValidation, "api", "decodeJSON", "malformed JSON body", err))
		return false
	}
	return true
}

// decodeJSONLenient decodes body into v, treating an empty body (io.EOF
// with nothing read) as success rather than an error.
func decodeJSONLenient(body io.Reader, v any) error {
	err := json.NewDecoder(body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
