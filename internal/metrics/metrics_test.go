package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dom/accounts/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(metrics.Refreshes.WithLabelValues(metrics.ResultReused))
	metrics.Refreshes.WithLabelValues(metrics.ResultReused).Inc()
	after := testutil.ToFloat64(metrics.Refreshes.WithLabelValues(metrics.ResultReused))

	assert.Equal(t, before+1, after)
}

func TestHandler(t *testing.T) {
	metrics.Logins.WithLabelValues(metrics.ResultSuccess).Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `accounts_logins_total{result="success"}`)
}
