package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datapunk/lake/pkg/lakeerr"
)

func TestStatusForUnauthorized(t *testing.T) {
	err := lakeerr.New(lakeerr.KindPolicy, "unauthorized", "bad key")
	assert.Equal(t, http.StatusUnauthorized, statusFor(err))
}

func TestStatusForRateLimited(t *testing.T) {
	err := lakeerr.New(lakeerr.KindPolicy, "rate_limited", "too many requests")
	assert.Equal(t, http.StatusTooManyRequests, statusFor(err))
}

func TestStatusForQuotaExceeded(t *testing.T) {
	err := lakeerr.New(lakeerr.KindPolicy, "quota_exceeded", "quota exceeded")
	assert.Equal(t, http.StatusTooManyRequests, statusFor(err))
}

func TestStatusForGenericPolicyFallsBackToForbidden(t *testing.T) {
	err := lakeerr.New(lakeerr.KindPolicy, "forbidden", "role not permitted")
	assert.Equal(t, http.StatusForbidden, statusFor(err))
}

func TestStatusForNonTaxonomyErrorIsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestToErrorDetailMapsFields(t *testing.T) {
	err := lakeerr.New(lakeerr.KindInput, "bad_dialect", "unknown dialect").WithField("dialect")
	detail := toErrorDetail(err)
	assert.Equal(t, "bad_dialect", detail.Code)
	assert.Equal(t, "dialect", detail.Field)
}

func TestToErrorDetailDefaultsUnknownErrors(t *testing.T) {
	detail := toErrorDetail(errors.New("boom"))
	assert.Equal(t, "internal", detail.Code)
}
