package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Reconciled("applied")
	m.Reconciled("applied")
	m.Reconciled("blocked")
	m.NotificationSent()
	m.Anticipated("pending_debt")
	m.FeeCacheLookup(true)
	m.FeeCacheLookup(false)
	m.FeeCacheLookup(false)
	m.ReportRow("applied")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconciled.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciled.WithLabelValues("blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anticipations.WithLabelValues("pending_debt")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.feeCacheLookup.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("applied")))
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Reconciled("noop")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `settlement_reconciliations_total{outcome="noop"} 1`)
}
