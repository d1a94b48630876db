package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPCounts(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/predict", "200"))
	ObserveHTTP("POST", "/v1/predict", "200", 3*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/predict", "200"))
	if after-before != 1 {
		t.Fatalf("counter delta=%v", after-before)
	}
}

func TestFallbackCounter(t *testing.T) {
	c := FallbacksTotal.WithLabelValues("enhanced_error")
	before := testutil.ToFloat64(c)
	c.Inc()
	if testutil.ToFloat64(c)-before != 1 {
		t.Fatalf("fallback counter did not move")
	}
}
