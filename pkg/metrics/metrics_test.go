package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveQuote(intent.Ok(intent.Quote{}))
	m.ObserveQuote(intent.QuoteFailure(intent.CodeNoQuotes, ""))
	m.ObserveSubmission(nil)
	m.ObserveSubmission(intent.NewError(intent.CodeUserDidntSign, ""))
	m.ObserveSettlement("success")
	m.ObserveStatusPoll(errors.New("timeout"))
	m.TrackerStarted()
	m.TrackerStarted()
	m.TrackerStopped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotesTotal.WithLabelValues("NO_QUOTES")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissionsTotal.WithLabelValues("USER_DIDNT_SIGN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlementsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusPollsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeTrackers))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var m *Registry
	m.ObserveQuote(intent.Ok(intent.Quote{}))
	m.ObserveSubmission(nil)
	m.TrackerStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveSettlement("not_valid")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `near_intents_settlements_total{outcome="not_valid"} 1`)
}
