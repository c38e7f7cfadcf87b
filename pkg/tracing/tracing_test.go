package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartSessionSpanCarriesSessionID(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartSessionSpan(context.Background(), "attempt.persist", "s-1", CorrectKey.Bool(true))
	Fail(span, errors.New("disk full"), "append attempt")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	got := ended[0]
	if got.Name() != "attempt.persist" {
		t.Fatalf("name = %q, want attempt.persist", got.Name())
	}
	a := attrs(got.Attributes())
	if a[SessionIDKey].AsString() != "s-1" || !a[CorrectKey].AsBool() {
		t.Fatalf("attributes = %v", got.Attributes())
	}
	if got.Status().Code != codes.Error {
		t.Fatalf("status = %v, want error", got.Status().Code)
	}
	if len(got.Events()) == 0 {
		t.Fatal("expected recorded error event")
	}
}

func TestGinMiddlewareRecordsStatus(t *testing.T) {
	recorder := recordSpans(t)

	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/api/quiz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/attempts", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/quiz", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/attempts", nil))

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(ended))
	}
	if ended[0].Name() != "GET /api/quiz" || ended[0].Status().Code == codes.Error {
		t.Fatalf("first span = %q status %v", ended[0].Name(), ended[0].Status().Code)
	}
	if ended[1].Status().Code != codes.Error {
		t.Fatalf("5xx span status = %v, want error", ended[1].Status().Code)
	}
	if attrs(ended[1].Attributes())["http.status_code"].AsInt64() != http.StatusServiceUnavailable {
		t.Fatalf("attributes = %v", ended[1].Attributes())
	}
}
