package cache_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SpatiumPortae/logportal/internal/cache"
	"github.com/stretchr/testify/assert"
)

func TestMemory(t *testing.T) {
	m := cache.NewMemory()
	assert.Nil(t, m.Get("missing"))

	m.Set("a", []byte("1"), time.Minute)
	assert.Equal(t, []byte("1"), m.Get("a"))

	m.Set("b", []byte("2"), -time.Second)
	assert.Nil(t, m.Get("b"), "expired entries are not returned")

	m.Invalidate()
	assert.Nil(t, m.Get("a"))
}

func TestMiddleware(t *testing.T) {
	calls := 0
	status := http.StatusOK
	h := cache.Middleware(cache.NewMemory(), time.Minute, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
		w.Write([]byte(`{"n":1}`))
	})

	t.Run("errors are not cached", func(t *testing.T) {
		status = http.StatusInternalServerError
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		status = http.StatusOK
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"n":1}`, rec.Body.String())
	}
	assert.Equal(t, 2, calls)
}
