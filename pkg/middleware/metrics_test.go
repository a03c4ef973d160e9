package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectMetric extracts the first metric from c whose labels include all of
// the given pairs.
func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	if t != nil {
		t.Helper()
	}
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}

		match := true
		for k, v := range labels {
			found := false
			for _, lp := range d.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == v {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			return d
		}
	}
	return nil
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("route-svc"))
	r.Post("/auth/reset-password/{token}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/reset-password/secret-token-value", nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}

	labels := map[string]string{"service": "route-svc", "method": "POST", "route": "/auth/reset-password/{token}", "status": "400"}
	m := collectMetric(t, httpRequestsTotal, labels)
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, m.GetCounter().GetValue(), float64(3))

	leaked := collectMetric(t, httpRequestsTotal, map[string]string{"route": "/auth/reset-password/secret-token-value"})
	assert.Nil(t, leaked)
}

func TestPrometheusMetrics_DurationHistogram(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("hist-svc"))
	r.Get("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/profile", nil))

	labels := map[string]string{"service": "hist-svc", "route": "/auth/profile", "status": "200"}
	m := collectMetric(t, httpRequestDuration, labels)
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestPrometheusMetrics_InFlightGauge(t *testing.T) {
	inFlightSeen := float64(-1)
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("inflight-svc"))
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		if m := collectMetric(nil, httpRequestsInFlight, map[string]string{"service": "inflight-svc"}); m != nil {
			inFlightSeen = m.GetGauge().GetValue()
		}
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.GreaterOrEqual(t, inFlightSeen, float64(1))
}

func TestPrometheusMetrics_DefaultStatusCode(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("default-status-svc"))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))

	m := collectMetric(t, httpRequestsTotal, map[string]string{"service": "default-status-svc", "status": "200"})
	require.NotNil(t, m)
}

func TestAuth_RecordsDecisions(t *testing.T) {
	reject := Auth(AuthenticatorFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("store down")
	}))
	accept := Auth(AuthenticatorFunc(func(_ context.Context, _ string) (string, error) {
		return "u-metrics", nil
	}))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	before := counterValue(t, "UNAUTHORIZED")
	reject(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, before+1, counterValue(t, "UNAUTHORIZED"))

	before = counterValue(t, "accepted")
	accept(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, before+1, counterValue(t, "accepted"))
}

func counterValue(t *testing.T, outcome string) float64 {
	t.Helper()
	m := collectMetric(t, authGateDecisions, map[string]string{"outcome": outcome})
	if m == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
