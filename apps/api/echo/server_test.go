package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/services/telemetry"
	testutil "github.com/trezcool/scholar/tests"
)

func TestServer_tracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	s := NewServer(ServerDeps{
		Conf:           core.NewTestConfig(),
		Logger:         testutil.NewLogger(),
		Translator:     core.NewTranslator(),
		DisableReqLogs: true,
	})

	traceIDs := make(map[string]bool)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		id := rec.Header().Get(telemetry.TraceIDHeader)
		require.NotEmpty(t, id)
		traceIDs[id] = true
	}
	assert.Len(t, traceIDs, 3, "one trace per request")
}
