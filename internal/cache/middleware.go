package cache

import (
	"net/http"
	"net/http/httptest"
	"time"
)

// Middleware serves successful responses of handler from storage for the provided
// duration, keyed by request URI.
//
//nolint:errcheck
func Middleware(storage Storage, duration time.Duration, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if content := storage.Get(r.RequestURI); content != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(content)
			return
		}
		c := httptest.NewRecorder()
		handler(c, r)

		for k, v := range c.Result().Header {
			w.Header()[k] = v
		}
		w.WriteHeader(c.Code)
		content := c.Body.Bytes()
		if c.Code == http.StatusOK {
			storage.Set(r.RequestURI, content, duration)
		}
		w.Write(content)
	})
}
