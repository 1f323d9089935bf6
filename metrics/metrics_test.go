package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/visionvoice/caption"
)

func TestMetrics_CaptionObserver(t *testing.T) {
	m := New()

	m.ObserveAttempt("transient")
	m.ObserveAttempt("transient")
	m.ObserveAttempt("success")
	m.ObserveBackoff(20 * time.Second)
	m.ObserveBackoff(40 * time.Second)
	m.ObserveResult(caption.KindNone)
	m.ObserveResult(caption.KindAuthentication)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.captionAttempts.WithLabelValues("transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captionAttempts.WithLabelValues("success")))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.captionBackoff))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captionResults.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captionResults.WithLabelValues("authentication")))
}

func TestMetrics_Hazard(t *testing.T) {
	m := New()

	m.ObserveHazard(true, 1)
	m.ObserveHazard(false, 99)
	m.ObserveHazard(false, 99)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hazardVerdicts.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.hazardVerdicts.WithLabelValues("none")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDescribe("ok", 1500*time.Millisecond)
	m.ObserveAttempt("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `visionvoice_caption_attempts_total{outcome="success"} 1`)
	assert.Contains(t, string(body), `visionvoice_describe_duration_seconds_count{result="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
