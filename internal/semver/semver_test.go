package semver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SpatiumPortae/logportal/internal/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		t.Run("basic", func(t *testing.T) {
			s := "v0.0.1"
			ver, err := semver.Parse(s)
			assert.Nil(t, err)
			assert.Equal(t, s, ver.String())
		})
		t.Run("double digits", func(t *testing.T) {
			s := "v10.24.30"
			ver, err := semver.Parse(s)
			assert.Nil(t, err)
			assert.Equal(t, s, ver.String())
		})
	})
	t.Run("negative", func(t *testing.T) {
		t.Run("no leading v", func(t *testing.T) {
			s := "0.0.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("major leading 0", func(t *testing.T) {
			s := "v01.0.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("minor leading 0", func(t *testing.T) {
			s := "v0.01.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("patch leading 0", func(t *testing.T) {
			s := "v0.1.01"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
	})
}

func TestCompare(t *testing.T) {
	sv, err := semver.Parse("v1.1.1")
	assert.Nil(t, err)
	t.Run("major", func(t *testing.T) {
		t.Run("oracle larger", func(t *testing.T) {
			oracle, err := semver.Parse("v2.0.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareOldMajor, sv.Compare(oracle))
		})
		t.Run("oracle less", func(t *testing.T) {
			oracle, err := semver.Parse("v0.0.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareNewMajor, sv.Compare(oracle))
		})
	})
	t.Run("minor", func(t *testing.T) {
		t.Run("oracle larger", func(t *testing.T) {
			oracle, err := semver.Parse("v1.2.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareOldMinor, sv.Compare(oracle))
		})
		t.Run("oracle less", func(t *testing.T) {
			oracle, err := semver.Parse("v1.0.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareNewMinor, sv.Compare(oracle))
		})
	})
	t.Run("patch", func(t *testing.T) {
		t.Run("oracle larger", func(t *testing.T) {
			oracle, err := semver.Parse("v1.1.2")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareOldPatch, sv.Compare(oracle))
		})
		t.Run("oracle less", func(t *testing.T) {
			oracle, err := semver.Parse("v1.1.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareNewPatch, sv.Compare(oracle))
		})
	})
	t.Run("equal", func(t *testing.T) {
		oracle, err := semver.Parse("v1.1.1")
		assert.Nil(t, err)
		assert.Equal(t, semver.CompareEqual, sv.Compare(oracle))
	})
}

func TestFetchVersion(t *testing.T) {
	serve := func(t *testing.T, handler http.HandlerFunc) string {
		t.Helper()
		ts := httptest.NewServer(handler)
		t.Cleanup(ts.Close)
		return strings.TrimPrefix(ts.URL, "http://")
	}

	t.Run("ok", func(t *testing.T) {
		addr := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/version", r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"major":1,"minor":2,"patch":3}`))
		})
		v, err := semver.FetchVersion(context.Background(), addr)
		require.NoError(t, err)
		assert.Equal(t, semver.Version{Major: 1, Minor: 2, Patch: 3}, v)
		assert.Equal(t, "v1.2.3", v.String())
	})

	t.Run("non-200 status", func(t *testing.T) {
		addr := serve(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		v, err := semver.FetchVersion(context.Background(), addr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
		assert.Equal(t, semver.Version{}, v)
	})

	t.Run("malformed body", func(t *testing.T) {
		addr := serve(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("v1.2.3"))
		})
		_, err := semver.FetchVersion(context.Background(), addr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding version")
	})

	t.Run("cancelled", func(t *testing.T) {
		addr := serve(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := semver.FetchVersion(ctx, addr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
