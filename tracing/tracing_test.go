package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_InvalidSamplingRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		_, err := NewProvider(Config{Enabled: true, SamplingRate: rate})
		assert.Error(t, err, "rate %f", rate)
	}
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), Sampler(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), Sampler(0.25).Description())
}

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, end := StartSpan(context.Background(), "substitutes.find", attribute.String("drug_id", "d1"))
	SetAttributes(ctx, attribute.Bool("cache_hit", false))
	end(nil)

	_, end = StartSpan(context.Background(), "substitutes.find")
	end(errors.New("store down"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "substitutes.find", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("drug_id", "d1"))
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("cache_hit", false))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestMiddlewareNamesSpanAndExposesTraceID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var seen string
	handler := Middleware("substitute-engine")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/substitutes?drugId=d1", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /substitutes", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), seen)
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}
