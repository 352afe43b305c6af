package monitor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/SpatiumPortae/logportal/internal/monitor"
	"github.com/SpatiumPortae/logportal/internal/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type staticSource logfetch.Snapshot

func (s staticSource) Snapshot() logfetch.Snapshot { return logfetch.Snapshot(s) }

func newTestServer(t *testing.T, hub *monitor.Hub, logDir string) *httptest.Server {
	t.Helper()
	source := staticSource{State: "AwaitingData", Progress: 0.5, Collecting: true, Received: 5, Total: 10}
	s := monitor.NewServer(":0", semver.Version{Major: 1, Minor: 2, Patch: 3}, source, hub, logDir, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTP(t *testing.T) {
	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "Log-1-10.ulg"), []byte("ULog"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "notes.txt"), []byte("x"), 0644))
	ts := newTestServer(t, monitor.NewHub(), logDir)

	t.Run("status page", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		page := string(b)
		assert.Contains(t, page, "logportal v1.2.3")
		assert.Contains(t, page, "AwaitingData")
		assert.Contains(t, page, "50%")
		assert.Contains(t, page, `href="/logs/Log-1-10.ulg"`)
		assert.NotContains(t, page, "notes.txt")
	})

	t.Run("ping", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/ping")
		require.NoError(t, err)
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "pong", string(b))
	})

	t.Run("version", func(t *testing.T) {
		v, err := semver.FetchVersion(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
		require.NoError(t, err)
		assert.Equal(t, "v1.2.3", v.String())
	})

	t.Run("status", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		var snap logfetch.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.Equal(t, "AwaitingData", snap.State)
		assert.Equal(t, 0.5, snap.Progress)
		assert.Equal(t, uint32(10), snap.Total)
	})

	t.Run("logs", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/logs")
		require.NoError(t, err)
		defer resp.Body.Close()
		var logs []monitor.LogFile
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
		require.Len(t, logs, 1)
		assert.Equal(t, "Log-1-10.ulg", logs[0].Name)
		assert.Equal(t, int64(4), logs[0].Size)
	})

	t.Run("download", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/logs/Log-1-10.ulg")
		require.NoError(t, err)
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "ULog", string(b))

		resp, err = http.Get(ts.URL + "/logs/notes.txt")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestEvents(t *testing.T) {
	hub := monitor.NewHub()
	ts := newTestServer(t, hub, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	// The subscription is registered once the handler runs, publish until it is seen.
	go func() {
		for ctx.Err() == nil {
			hub.Progress(0.5)
			time.Sleep(20 * time.Millisecond)
		}
	}()
	var ev monitor.Event
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, monitor.ProgressEvent, ev.Type)
	assert.Equal(t, 0.5, ev.Progress)
}

func TestHub(t *testing.T) {
	hub := monitor.NewHub()
	events, unsubscribe := hub.Subscribe()

	hub.Status("Requesting latest log")
	hub.Progress(0.25)
	hub.Done(logfetch.Result{Outcome: logfetch.Aborted, Err: errors.New("boom")})

	ev := <-events
	assert.Equal(t, monitor.StatusEvent, ev.Type)
	assert.Equal(t, "Requesting latest log", ev.Message)
	ev = <-events
	assert.Equal(t, 0.25, ev.Progress)
	ev = <-events
	assert.Equal(t, monitor.DoneEvent, ev.Type)
	assert.Equal(t, "boom", ev.Error)
	assert.Equal(t, logfetch.Aborted, ev.Result.Outcome)

	unsubscribe()
	unsubscribe()
	_, ok := <-events
	assert.False(t, ok)

	t.Run("late subscribers get the last result", func(t *testing.T) {
		late, cancel := hub.Subscribe()
		defer cancel()
		ev := <-late
		assert.Equal(t, monitor.DoneEvent, ev.Type)
	})

	t.Run("slow subscribers do not block", func(t *testing.T) {
		_, cancel := hub.Subscribe()
		defer cancel()
		for i := 0; i < 1000; i++ {
			hub.Progress(float64(i) / 1000)
		}
	})

	t.Run("close ends subscriptions", func(t *testing.T) {
		sub, _ := hub.Subscribe()
		hub.Close()
		for range sub {
		}
		closed, _ := hub.Subscribe()
		_, ok := <-closed
		assert.False(t, ok)
	})
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := monitor.NewServer(l.Addr().String(), semver.Version{}, staticSource{}, monitor.NewHub(), t.TempDir(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Serve(ctx, l) }()

	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
