package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/finguard/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func testRouter(m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(CORSMiddleware)
	r.Use(TraceMiddleware)
	r.Use(ObserveMiddleware(m))
	r.Use(RecoverMiddleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"traceId": GetTraceID(r.Context())})
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return r
}

func TestTraceMiddleware(t *testing.T) {
	t.Run("GeneratesIDs", func(t *testing.T) {
		rr := httptest.NewRecorder()
		testRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/1", nil))

		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected generated request id")
		}
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["traceId"] == "" || body["traceId"] != rr.Header().Get(TraceIDHeader) {
			t.Errorf("expected handler trace id to match header, got %q vs %q", body["traceId"], rr.Header().Get(TraceIDHeader))
		}
	})

	t.Run("ContinuesTraceparent", func(t *testing.T) {
		prev := otel.GetTextMapPropagator()
		otel.SetTextMapPropagator(propagation.TraceContext{})
		defer otel.SetTextMapPropagator(prev)

		const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
		req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
		rr := httptest.NewRecorder()
		testRouter(nil).ServeHTTP(rr, req)

		if got := rr.Header().Get(TraceIDHeader); got != traceID {
			t.Errorf("expected trace id %s, got %s", traceID, got)
		}
	})
}

func TestRecoverMiddleware(t *testing.T) {
	m := metrics.New()
	rr := httptest.NewRecorder()
	testRouter(m).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") {
		t.Errorf("expected JSON error body, got %s", rr.Body.String())
	}

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(out.Body.String(), `route="/boom",status="500"`) {
		t.Error("expected panic recorded as 500 on the route pattern")
	}
}

func TestObserveMiddlewareRoutePattern(t *testing.T) {
	m := metrics.New()
	router := testRouter(m)
	for _, id := range []string{"a", "b", "c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(out.Body.String(), `route="/items/{id}",status="200"} 3`) {
		t.Errorf("expected three requests under the route pattern:\n%s", out.Body.String())
	}
}
