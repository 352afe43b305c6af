// Package logfetch implements the download of the most recent flight log from a
// vehicle using the MAVLink log transfer messages.
//
// A transfer first asks for the log list until the vehicle reports its latest entry,
// then requests the whole byte range of that log and keeps track of which 90 byte
// chunks are still missing. When no message has been accepted for a while the
// session re-requests from the first missing chunk, and gives up after a bounded
// number of retries.
package logfetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SpatiumPortae/logportal/protocol/mavlink"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NoProgress is reported as progress while no transfer is active.
const NoProgress = -1.0

var (
	ErrEntryTimeout = errors.New("vehicle did not report a log entry")
	ErrDataTimeout  = errors.New("vehicle stopped sending log data")
	ErrAborted      = errors.New("transfer aborted")
	ErrSuperseded   = errors.New("transfer superseded by a new request")
	ErrDecode       = errors.New("log could not be decoded")
	ErrSink         = errors.New("log file could not be written")
)

// Config specifies the protocol parameters of a session.
type Config struct {
	TargetSystem    uint8
	TargetComponent uint8
	TickInterval    time.Duration
	StallTimeout    time.Duration
	EntryRetries    int
	DataRetries     int
}

func DefaultConfig() Config {
	return Config{
		TargetSystem:    1,
		TargetComponent: 1,
		TickInterval:    50 * time.Millisecond,
		StallTimeout:    250 * time.Millisecond,
		EntryRetries:    3,
		DataRetries:     5,
	}
}

// Result describes how a transfer ended.
type Result struct {
	TransferID uuid.UUID     `json:"transfer_id"`
	Outcome    Outcome       `json:"outcome"`
	Entry      LogDescriptor `json:"entry"`
	Path       string        `json:"path,omitempty"`
	Duration   time.Duration `json:"duration"`
	Throughput float64       `json:"throughput_kbps"` // kB/s
	Err        error         `json:"-"`
}

// Snapshot is a point in time view of the session.
type Snapshot struct {
	TransferID string  `json:"transfer_id,omitempty"`
	State      string  `json:"state"`
	Progress   float64 `json:"progress"`
	Loaded     bool    `json:"loaded"`
	Collecting bool    `json:"collecting"`
	LogID      uint16  `json:"log_id,omitempty"`
	Size       uint32  `json:"size,omitempty"`
	Received   uint32  `json:"received_chunks"`
	Total      uint32  `json:"total_chunks"`
}

// transfer holds the state owned by a single RequestLatest call.
type transfer struct {
	id      uuid.UUID
	entry   LogDescriptor
	sink    Sink
	pending *PendingSet
	logger  *zap.Logger

	retries      int
	start        time.Time
	lastActivity time.Time
	lastRequest  time.Time
	stop         func()

	// Set when the transfer is detached from the session.
	outcome Outcome
	err     error
	end     time.Time

	result Result
	done   chan struct{}
}

// Session drives log transfers. All methods are safe for concurrent use.
type Session struct {
	ch      Channel
	store   SinkStore
	decoder Decoder
	sink    ProgressSink
	sched   Scheduler
	now     func() time.Time
	logger  *zap.Logger
	cfg     Config

	mu       sync.Mutex
	state    State
	progress float64
	loaded   bool
	active   *transfer
}

// Option configures a Session.
type Option func(*Session)

func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

func WithDecoder(d Decoder) Option {
	return func(s *Session) { s.decoder = d }
}

func WithProgressSink(sink ProgressSink) Option {
	return func(s *Session) { s.sink = sink }
}

func WithScheduler(sched Scheduler) Option {
	return func(s *Session) { s.sched = sched }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New returns an idle session sending requests on ch and writing logs into sinks
// created by store.
func New(ch Channel, store SinkStore, opts ...Option) *Session {
	s := &Session{
		ch:       ch,
		store:    store,
		sink:     nopSink{},
		sched:    TickerScheduler{},
		now:      time.Now,
		logger:   zap.NewNop(),
		cfg:      DefaultConfig(),
		progress: NoProgress,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.TickInterval <= 0 {
		s.cfg.TickInterval = DefaultConfig().TickInterval
	}
	return s
}

// effects are collected while the lock is held and applied after it is released.
type effects struct {
	sends  []mavlink.Message
	notify []func(ProgressSink)
	detach *transfer
}

func (e *effects) send(msg mavlink.Message) {
	e.sends = append(e.sends, msg)
}

func (e *effects) status(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.notify = append(e.notify, func(p ProgressSink) { p.Status(msg) })
}

func (e *effects) progress(v float64) {
	e.notify = append(e.notify, func(p ProgressSink) { p.Progress(v) })
}

// unlock releases the lock and applies the collected effects.
func (s *Session) unlock(e *effects) {
	s.mu.Unlock()
	for _, msg := range e.sends {
		if err := s.ch.Send(msg); err != nil {
			// The link is lossy anyway, a failed send is recovered by the retry timer.
			s.logger.Warn("sending request", zap.String("msg", msg.MsgID().Name()), zap.Error(err))
		}
	}
	for _, fn := range e.notify {
		fn(s.sink)
	}
	if e.detach != nil {
		s.finish(e.detach)
	}
}

// RequestLatest starts the transfer of the most recent log. A transfer that is
// already running is aborted first.
func (s *Session) RequestLatest() error {
	_, err := s.start()
	return err
}

// Fetch transfers the most recent log and blocks until the transfer ends. Cancelling
// the context aborts the transfer.
func (s *Session) Fetch(ctx context.Context) (Result, error) {
	t, err := s.start()
	if err != nil {
		return Result{}, err
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		s.abort(t, errors.Wrap(ErrAborted, ctx.Err().Error()))
		<-t.done
	}
	return t.result, t.result.Err
}

// Abort cancels the active transfer, if any.
func (s *Session) Abort() {
	s.mu.Lock()
	t := s.active
	s.mu.Unlock()
	if t != nil {
		s.abort(t, ErrAborted)
	}
}

func (s *Session) abort(t *transfer, err error) {
	s.mu.Lock()
	var e effects
	if s.active == t {
		s.detachLocked(&e, Aborted, err)
	}
	s.unlock(&e)
}

func (s *Session) start() (*transfer, error) {
	s.mu.Lock()
	var e effects
	if s.active != nil {
		s.detachLocked(&e, Aborted, ErrSuperseded)
	}
	prev := e.detach
	e.detach = nil

	sink, err := s.store.Create()
	if err != nil {
		e.status("Could not create log file: %v", err)
		s.unlock(&e)
		if prev != nil {
			s.finish(prev)
		}
		return nil, errors.Wrap(ErrSink, err.Error())
	}

	now := s.now()
	id := uuid.New()
	t := &transfer{
		id:           id,
		sink:         sink,
		logger:       s.logger.With(zap.String("transfer_id", id.String())),
		start:        now,
		lastActivity: now,
		lastRequest:  now,
		done:         make(chan struct{}),
	}
	s.active = t
	s.state = AwaitingEntry
	s.progress = 0
	s.loaded = false
	t.stop = s.sched.Every(s.cfg.TickInterval, func() { s.tick(t) })

	e.send(s.listRequest(0))
	e.status("Requesting latest log")
	t.logger.Debug("requesting log list")
	s.unlock(&e)
	if prev != nil {
		s.finish(prev)
	}
	return t, nil
}

func (s *Session) listRequest(id uint16) mavlink.LogRequestList {
	return mavlink.LogRequestList{
		TargetSystem:    s.cfg.TargetSystem,
		TargetComponent: s.cfg.TargetComponent,
		Start:           id,
		End:             id,
	}
}

func (s *Session) dataRequest(t *transfer, ofs uint32) mavlink.LogRequestData {
	return mavlink.LogRequestData{
		TargetSystem:    s.cfg.TargetSystem,
		TargetComponent: s.cfg.TargetComponent,
		ID:              t.entry.ID,
		Ofs:             ofs,
		Count:           t.entry.Size - ofs,
	}
}

// Handle processes a message received from the vehicle.
func (s *Session) Handle(msg mavlink.Message) {
	s.mu.Lock()
	var e effects
	t := s.active
	if t != nil {
		switch m := msg.(type) {
		case mavlink.LogEntry:
			if s.state == AwaitingEntry {
				s.handleEntry(&e, t, m)
			}
		case mavlink.LogData:
			if s.state == AwaitingData && m.ID == t.entry.ID {
				s.handleData(&e, t, m)
			}
		}
	}
	s.unlock(&e)
}

func (s *Session) accept(t *transfer) {
	t.lastActivity = s.now()
	t.retries = 0
}

func (s *Session) handleEntry(e *effects, t *transfer, m mavlink.LogEntry) {
	s.accept(t)
	if m.NumLogs == 0 {
		s.detachLocked(e, Empty, nil)
		return
	}
	last := m.NumLogs - 1
	if m.ID != last {
		t.logger.Debug("entry is not the latest log", zap.Uint16("log_id", m.ID), zap.Uint16("latest", last))
		t.lastRequest = s.now()
		e.send(s.listRequest(last))
		return
	}
	t.entry = LogDescriptor{ID: m.ID, Size: m.Size, TimeUTC: m.TimeUTC}
	if m.Size == 0 {
		s.detachLocked(e, Empty, nil)
		return
	}

	t.pending = NewPendingSet(ChunkCount(m.Size))
	s.state = AwaitingData
	t.lastRequest = s.now()
	t.logger.Info("log entry received",
		zap.Uint16("log_id", m.ID),
		zap.Uint32("size", m.Size),
		zap.Uint32("chunks", t.pending.Total()),
	)
	e.status("Loading log %d: %d chunks (%d bytes)", m.ID, t.pending.Total(), m.Size)
	e.send(s.dataRequest(t, 0))
}

func (s *Session) handleData(e *effects, t *transfer, m mavlink.LogData) {
	idx := ChunkIndex(m.Ofs)
	if m.Ofs >= t.entry.Size || idx >= t.pending.Total() {
		return
	}
	s.accept(t)
	if !t.pending.Contains(idx) {
		return
	}

	payload := m.Payload()
	if remaining := t.entry.Size - m.Ofs; uint32(len(payload)) > remaining {
		payload = payload[:remaining]
	}
	if _, err := t.sink.WriteAt(payload, int64(m.Ofs)); err != nil {
		s.detachLocked(e, Failed, errors.Wrap(ErrSink, err.Error()))
		return
	}
	t.pending.Remove(idx)

	s.progress = float64(t.pending.Received()) / float64(t.pending.Total())
	e.progress(s.progress)
	if t.pending.Empty() {
		s.detachLocked(e, Completed, nil)
	}
}

// tick runs on the scheduler of t and retries the last request once the link stalls.
func (s *Session) tick(t *transfer) {
	s.mu.Lock()
	var e effects
	if s.active != t {
		t.stop()
		s.unlock(&e)
		return
	}

	now := s.now()
	since := t.lastActivity
	if t.lastRequest.After(since) {
		since = t.lastRequest
	}
	if now.Sub(since) < s.cfg.StallTimeout {
		s.unlock(&e)
		return
	}

	t.retries++
	t.lastRequest = now
	switch s.state {
	case AwaitingEntry:
		if t.retries > s.cfg.EntryRetries {
			s.detachLocked(&e, Aborted, ErrEntryTimeout)
			break
		}
		t.logger.Debug("retrying log list", zap.Int("retry", t.retries))
		e.send(s.listRequest(0))
	case AwaitingData:
		if t.retries > s.cfg.DataRetries {
			s.detachLocked(&e, Aborted, ErrDataTimeout)
			break
		}
		first, _ := t.pending.First()
		ofs := first * ChunkSize
		t.logger.Debug("retrying log data",
			zap.Int("retry", t.retries),
			zap.Uint32("ofs", ofs),
			zap.Uint32("missing_chunks", t.pending.Len()),
		)
		e.send(s.dataRequest(t, ofs))
	}
	s.unlock(&e)
}

// detachLocked ends the active transfer. The sink is closed and the result published
// by finish, once the lock has been released.
func (s *Session) detachLocked(e *effects, outcome Outcome, err error) {
	t := s.active
	t.stop()
	t.outcome = outcome
	t.err = err
	t.end = s.now()

	s.active = nil
	s.state = Idle
	s.progress = NoProgress
	e.progress(NoProgress)

	switch outcome {
	case Empty:
		e.status("No log available")
	case Aborted, Failed:
		e.status("Transfer aborted: %v", err)
	}
	e.detach = t
}

// finish closes the sink of a detached transfer, then decodes and commits or discards
// the file, and publishes the result.
func (s *Session) finish(t *transfer) {
	r := Result{
		TransferID: t.id,
		Outcome:    t.outcome,
		Entry:      t.entry,
		Duration:   t.end.Sub(t.start),
		Err:        t.err,
	}
	path := t.sink.Name()
	closeErr := t.sink.Close()

	if r.Outcome == Completed && closeErr != nil {
		r.Outcome = Failed
		r.Err = errors.Wrap(ErrSink, closeErr.Error())
		s.sink.Status(fmt.Sprintf("Could not write log: %v", closeErr))
	}
	if r.Outcome != Completed {
		if err := s.store.Discard(path); err != nil {
			t.logger.Warn("discarding log file", zap.String("path", path), zap.Error(err))
		}
		s.publish(t, r)
		return
	}

	if secs := r.Duration.Seconds(); secs > 0 {
		r.Throughput = float64(t.entry.Size) / 1024 / secs
	}
	var decodeErr error
	if s.decoder != nil {
		decodeErr = s.decoder.Decode(path)
	}
	committed, err := s.store.Commit(path, t.entry.FileName())
	if err != nil {
		r.Outcome = Failed
		r.Err = errors.Wrap(ErrSink, err.Error())
		if err := s.store.Discard(path); err != nil {
			t.logger.Warn("discarding log file", zap.String("path", path), zap.Error(err))
		}
		s.sink.Status(fmt.Sprintf("Could not save log: %v", err))
		s.publish(t, r)
		return
	}
	r.Path = committed
	if decodeErr != nil {
		r.Outcome = Failed
		r.Err = errors.Wrap(ErrDecode, decodeErr.Error())
		s.sink.Status(fmt.Sprintf("Log %d saved but could not be decoded: %v", t.entry.ID, decodeErr))
		s.publish(t, r)
		return
	}

	s.mu.Lock()
	if s.active == nil {
		s.loaded = true
	}
	s.mu.Unlock()
	s.sink.Status(fmt.Sprintf("Log loaded: %s (%.1f kB/s)", t.entry.FileName(), r.Throughput))
	s.publish(t, r)
}

func (s *Session) publish(t *transfer, r Result) {
	t.result = r
	s.sink.Done(r)
	close(t.done)
}

// Progress returns the fraction of chunks received, or NoProgress when idle.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Loaded reports whether the last transfer produced a decoded log.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Collecting reports whether a transfer is active.
func (s *Session) Collecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:      s.state.Name(),
		Progress:   s.progress,
		Loaded:     s.loaded,
		Collecting: s.active != nil,
	}
	if t := s.active; t != nil {
		snap.TransferID = t.id.String()
		snap.LogID = t.entry.ID
		snap.Size = t.entry.Size
		if t.pending != nil {
			snap.Received = t.pending.Received()
			snap.Total = t.pending.Total()
		}
	}
	return snap
}
