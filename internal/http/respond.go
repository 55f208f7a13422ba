package http

import (
	"encoding/json"
	"errors"
	"net/http"

	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
)

// Responses use a small status envelope: status 0 means success and the
// payload fields sit alongside it; status 1 means failure with an error
// code and a display message.

func writeSuccess(w http.ResponseWriter, payload map[string]any) {
	body := map[string]any{"status": 0}
	for k, v := range payload {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := bridgeerrors.CodeInternal
	message := "internal error"

	var bridgeErr *bridgeerrors.Error
	if errors.As(err, &bridgeErr) {
		code = bridgeErr.Code
		message = bridgeErr.Message
		if bridgeErr.ProviderMessage != "" {
			message = bridgeErr.ProviderMessage
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	json.NewEncoder(w).Encode(map[string]any{
		"status":  1,
		"error":   code,
		"message": message,
	})
}

// statusFor maps an error code to its HTTP status. Token verification
// failures are authentication problems; validation and credential
// failures are client errors; everything else is a server fault.
func statusFor(code string) int {
	switch code {
	case bridgeerrors.CodeUnauthorized,
		bridgeerrors.CodeMalformedToken,
		bridgeerrors.CodeUnknownSigningKey,
		bridgeerrors.CodeInvalidSignature,
		bridgeerrors.CodeTokenExpired,
		bridgeerrors.CodeUnknownIssuer,
		bridgeerrors.CodeNoMatchingUser,
		bridgeerrors.CodeSessionExpired:
		return http.StatusUnauthorized
	case bridgeerrors.CodeInvalidInput,
		bridgeerrors.CodeAuthenticationFailed:
		return http.StatusBadRequest
	case bridgeerrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bridgeerrors.InvalidInput("invalid JSON body")
	}
	return nil
}
