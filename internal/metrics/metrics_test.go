package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observers(t *testing.T) {
	m := New()

	m.ObserveIngestion("ok", 3)
	m.ObserveIngestion("unprocessable", 0)
	m.ObserveExtraction("pdf_text", "low_quality")
	m.ObserveCache("summary", true)
	m.ObserveCache("summary", false)
	m.ObserveCache("summary", false)
	m.ObserveQuery("ok", 150*time.Millisecond)
	m.ObserveBackendFailure("embed")
	m.ObserveHeap(1024, true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ingestions.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.extractions.WithLabelValues("pdf_text", "low_quality")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheRequests.WithLabelValues("summary", "miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.backendFailures.WithLabelValues("embed")))
	assert.Equal(t, float64(1024), testutil.ToFloat64(m.heapBytes))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.forcedCollection))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveIngestion("ok", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cramwell_ingestions_total{outcome="ok"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
