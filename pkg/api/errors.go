package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/datapunk/lake/pkg/lakeerr"
)

// statusFor maps err to an HTTP status, refining lakeerr.HTTPStatus's
// generic per-Kind mapping with the two policy-kind special cases the spec
// calls out by name (§4.8): unauthenticated requests get 401, not the
// generic KindPolicy 403, and rate-limited/quota-exceeded requests get 429.
func statusFor(err error) int {
	var lerr *lakeerr.Error
	if !errors.As(err, &lerr) {
		return http.StatusInternalServerError
	}
	switch lerr.Code {
	case "unauthorized":
		return http.StatusUnauthorized
	case "rate_limited", "quota_exceeded":
		return http.StatusTooManyRequests
	default:
		return lakeerr.HTTPStatus(lerr.Kind)
	}
}

// toErrorDetail projects err into the client-safe ErrorDetail shape,
// defaulting to an internal-error code for anything outside the taxonomy
// so driver/library errors never leak their raw message to a caller.
func toErrorDetail(err error) ErrorDetail {
	var lerr *lakeerr.Error
	if errors.As(err, &lerr) {
		return ErrorDetail{
			Kind:    string(lerr.Kind),
			Code:    lerr.Code,
			Message: lerr.Message,
			Field:   lerr.Field,
			Details: lerr.Details,
		}
	}
	return ErrorDetail{Kind: string(lakeerr.KindInternal), Code: "internal", Message: "internal error"}
}

// writeError writes a single-error QueryResponse-shaped body (even for
// non-query endpoints, the envelope's errors[] projection is reused so
// clients have one error shape across the whole API) with the status
// statusFor derives from err.
func writeError(w http.ResponseWriter, requestID string, err error) {
	detail := toErrorDetail(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(QueryResponse{
		RequestID: requestID,
		Status:    "failed",
		Errors:    []ErrorDetail{detail},
	})
}
