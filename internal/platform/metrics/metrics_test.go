package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/cases/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cases/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cases/def", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/cases/{id}", "GET", "404")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetDependencyUp("redis", true)
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSetDependencyUp(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetDependencyUp("postgres", true)
	m.SetDependencyUp("redis", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dependencyUp.WithLabelValues("postgres")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.dependencyUp.WithLabelValues("redis")))
}
