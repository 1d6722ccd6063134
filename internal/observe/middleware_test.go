package observe

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMiddleware_SetsCorrelationID(t *testing.T) {
	useTestTracer(t)
	m, _ := newTestMetrics(t)

	var inner string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if len(inner) != 32 {
		t.Fatalf("handler correlation ID = %q", inner)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inner {
		t.Errorf("X-Correlation-ID = %q, want %q", got, inner)
	}
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	exp := useTestTracer(t)
	m, reader := newTestMetrics(t)
	captureLogs(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/progress", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Middleware(m)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/progress?user=u1&word=cat", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/no/such/path", nil))

	met := findMetric(collect(t, reader), "elocute.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	routes := map[string]string{}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		routes[route.AsString()] = status.AsString()
	}
	if routes["GET /v1/progress"] != "404" {
		t.Errorf("routes = %v, want GET /v1/progress with status 404", routes)
	}
	if _, ok := routes["unmatched"]; !ok {
		t.Errorf("routes = %v, want unmatched entry", routes)
	}

	spans := exp.GetSpans()
	if len(spans) != 2 || !strings.HasSuffix(spans[0].Name, "GET /v1/progress") {
		t.Errorf("spans = %d, first name %q", len(spans), spans[0].Name)
	}
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	useTestTracer(t)
	m, _ := newTestMetrics(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var got string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != traceID {
		t.Errorf("trace ID = %q, want %q", got, traceID)
	}
}
