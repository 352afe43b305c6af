package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SpatiumPortae/logportal/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToWriter(t *testing.T) {
	var buf bytes.Buffer
	lgr := logger.ToWriter(&buf)
	lgr.Debug("requesting log list", zap.Uint16("log_id", 4))
	require.NoError(t, lgr.Sync())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "requesting log list", line["msg"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, float64(4), line["log_id"])
}

func TestFromContext(t *testing.T) {
	_, err := logger.FromContext(context.Background())
	assert.Error(t, err)

	lgr := zap.NewNop()
	got, err := logger.FromContext(logger.WithLogger(context.Background(), lgr))
	require.NoError(t, err)
	assert.Same(t, lgr, got)
}

func TestMiddleware(t *testing.T) {
	var found bool
	handler := logger.Middleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := logger.FromContext(r.Context())
		found = err == nil
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.True(t, found)
}
