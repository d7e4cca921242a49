package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(ussdRequests.WithLabelValues("completed"))
	USSDRequest("completed")
	USSDRequest("completed")
	assert.Equal(t, before+2, testutil.ToFloat64(ussdRequests.WithLabelValues("completed")))

	purged := testutil.ToFloat64(sessionsPurged)
	SessionsPurged(0)
	SessionsPurged(3)
	assert.Equal(t, purged+3, testutil.ToFloat64(sessionsPurged))
}

func TestHandlerExposesMetrics(t *testing.T) {
	USSDRequest("continue")
	ObserveOracle("assess", 20*time.Millisecond)
	SMSRequest("parsed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `harvestlink_ussd_requests_total{outcome="continue"}`)
	assert.Contains(t, string(body), `harvestlink_oracle_duration_seconds_count{call="assess"}`)
	assert.Contains(t, string(body), `harvestlink_sms_requests_total{result="parsed"}`)
	assert.Contains(t, string(body), "go_goroutines")
}
