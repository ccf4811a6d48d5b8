package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	"github.com/drblury/docflow/substrate"
)

func newAdminService(t *testing.T, origins ...string) *Service {
	t.Helper()
	_, factory := fakeSubstrate(substrate.ChannelCapabilities)
	conf := newTestConfig()
	conf.MetricsEnabled = true
	conf.AdminCORSAllowedOrigins = origins
	svc := newTestService(t, conf, ServiceDependencies{Substrates: factory})
	require.NoError(t, svc.Register(context.Background(), Middleware{
		Name:                "ocr",
		Description:         "Extracts text from images",
		InputQueue:          "images",
		OutputTopic:         "texts",
		SupportedInputTypes: []string{"image/*"},
		Unit:                noopUnit,
	}))
	return svc
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminHealth(t *testing.T) {
	svc := newAdminService(t)
	rec := serve(svc.adminRouter(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, healthResponse{Status: "ok", Substrate: "channel", Middlewares: []string{"ocr"}}, body)
}

func TestAdminMiddlewares(t *testing.T) {
	svc := newAdminService(t)
	rec := serve(svc.adminRouter(), http.MethodGet, "/api/middlewares", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []MiddlewareInfo
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "ocr", infos[0].Name)
	assert.Equal(t, "Extracts text from images", infos[0].Description)
	assert.Equal(t, "images.dlq", infos[0].DeadLetterQueue)
	assert.Equal(t, []string{"image/*"}, infos[0].SupportedInputTypes)
	assert.Contains(t, infos[0].Condition, "image/*")
}

func TestAdminMetrics(t *testing.T) {
	svc := newAdminService(t)
	svc.metrics.observeBatch("ocr", 2)

	rec := serve(svc.adminRouter(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `docflow_batch_size_count{middleware="ocr"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAdminCORS(t *testing.T) {
	t.Run("allowed origin", func(t *testing.T) {
		svc := newAdminService(t, "https://ops.example.com")
		rec := serve(svc.adminRouter(), http.MethodGet, "/healthz", http.Header{"Origin": {"https://OPS.example.com"}})
		assert.Equal(t, "https://OPS.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("wildcard", func(t *testing.T) {
		svc := newAdminService(t, "*")
		rec := serve(svc.adminRouter(), http.MethodOptions, "/api/middlewares", http.Header{"Origin": {"https://any.example.com"}})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Vary"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		svc := newAdminService(t, "https://ops.example.com")
		rec := serve(svc.adminRouter(), http.MethodGet, "/healthz", http.Header{"Origin": {"https://evil.example.com"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
