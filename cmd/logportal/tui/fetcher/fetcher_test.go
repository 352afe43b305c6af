package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/SpatiumPortae/logportal/cmd/logportal/tui"
	"github.com/SpatiumPortae/logportal/internal/logfetch"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	snap logfetch.Snapshot
}

func (f *fakeFetcher) Fetch(ctx context.Context) (logfetch.Result, error) {
	<-ctx.Done()
	return logfetch.Result{Outcome: logfetch.Aborted, Err: logfetch.ErrAborted}, logfetch.ErrAborted
}

func (f *fakeFetcher) Snapshot() logfetch.Snapshot {
	return f.snap
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func TestFlow(t *testing.T) {
	f := &fakeFetcher{snap: logfetch.Snapshot{State: logfetch.AwaitingEntry.Name()}}
	m := newModel(context.Background(), f, NewSink())
	assert.Equal(t, showRequesting, m.state)

	m = update(t, m, tui.StatusMsg("Requesting latest log"))
	assert.Equal(t, showRequesting, m.state)

	f.snap = logfetch.Snapshot{State: logfetch.AwaitingData.Name(), LogID: 5, Size: 900}
	m = update(t, m, tui.StatusMsg("Loading log 5: 10 chunks (900 bytes)"))
	assert.Equal(t, showReceiving, m.state)
	assert.Equal(t, uint16(5), m.logID)
	assert.Equal(t, int64(900), m.transferProgress.LogSize)
	assert.Contains(t, m.View(), "Receiving log 5")

	m = update(t, m, tui.ProgressMsg(0.5))
	assert.Equal(t, showReceiving, m.state)
	m = update(t, m, tui.ProgressMsg(1))
	assert.Equal(t, showSaving, m.state)

	assert.False(t, m.keys.CopyPath.Enabled())
	m = update(t, m, fetchDoneMsg{result: logfetch.Result{
		Outcome:  logfetch.Completed,
		Entry:    logfetch.LogDescriptor{ID: 5, Size: 900, TimeUTC: 1000},
		Path:     "/logs/Log-5-1000.ulg",
		Duration: time.Second,
	}})
	assert.Equal(t, showFinished, m.state)
	assert.True(t, m.keys.CopyPath.Enabled())
	assert.Equal(t, 1.0, m.transferProgress.Progress())
	assert.Contains(t, m.View(), "/logs/Log-5-1000.ulg")
}

func TestQuitAborts(t *testing.T) {
	f := &fakeFetcher{}
	m := newModel(context.Background(), f, NewSink())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, showAborting, m.state)
	require.Error(t, m.ctx.Err())

	msg := fetchCmd(m.ctx, f)()
	m = update(t, m, msg)
	assert.Equal(t, showFinished, m.state)
	assert.Contains(t, m.View(), "Transfer aborted")
}

func TestEmptyLog(t *testing.T) {
	m := newModel(context.Background(), &fakeFetcher{}, NewSink())
	m = update(t, m, fetchDoneMsg{result: logfetch.Result{Outcome: logfetch.Empty}})
	assert.Equal(t, showFinished, m.state)
	assert.Contains(t, m.View(), "no log")
}

func TestSink(t *testing.T) {
	sink := NewSink()
	for i := 0; i < 100; i++ {
		sink.Progress(float64(i) / 100)
	}
	assert.Len(t, sink.msgs, cap(sink.msgs))

	done := make(chan struct{})
	go func() {
		sink.Status("Requesting latest log")
		close(done)
	}()
	sink.Close()
	sink.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("status blocked after close")
	}
}
