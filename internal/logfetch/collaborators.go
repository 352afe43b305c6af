package logfetch

import (
	"io"
	"sync"
	"time"

	"github.com/SpatiumPortae/logportal/protocol/mavlink"
	"go.uber.org/zap"
)

// Channel is the outbound half of the vehicle link. Inbound messages are delivered
// through Session.Handle.
type Channel interface {
	Send(msg mavlink.Message) error
}

// Scheduler runs fn every d until the returned stop function is called.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

// Sink receives the bytes of a log at their offsets.
type Sink interface {
	io.WriterAt
	io.Closer
	Name() string
}

// SinkStore creates sinks and moves completed ones to their final location.
type SinkStore interface {
	Create() (Sink, error)
	Commit(path, name string) (string, error)
	Discard(path string) error
}

// Decoder checks that a completed log file can be read.
type Decoder interface {
	Decode(path string) error
}

// ProgressSink is notified about the progress of transfers. Notifications are never
// delivered while the session lock is held.
type ProgressSink interface {
	Progress(p float64)
	Status(msg string)
	Done(r Result)
}

// ------------------------------------------------------ Scheduler ----------------------------------------------------

// TickerScheduler is a Scheduler backed by time.Ticker.
type TickerScheduler struct{}

func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	quit := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-quit:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(quit) }) }
}

// ---------------------------------------------------- ProgressSinks --------------------------------------------------

type nopSink struct{}

func (nopSink) Progress(float64) {}
func (nopSink) Status(string)    {}
func (nopSink) Done(Result)      {}

type multiSink []ProgressSink

func (m multiSink) Progress(p float64) {
	for _, s := range m {
		s.Progress(p)
	}
}

func (m multiSink) Status(msg string) {
	for _, s := range m {
		s.Status(msg)
	}
}

func (m multiSink) Done(r Result) {
	for _, s := range m {
		s.Done(r)
	}
}

// Sinks returns a ProgressSink notifying every provided sink in order.
func Sinks(sinks ...ProgressSink) ProgressSink {
	return multiSink(sinks)
}

type logSink struct {
	logger *zap.Logger
}

// LogSink returns a ProgressSink writing status lines and results to the logger.
func LogSink(logger *zap.Logger) ProgressSink {
	return logSink{logger: logger}
}

func (l logSink) Progress(p float64) {
	l.logger.Debug("progress", zap.Float64("progress", p))
}

func (l logSink) Status(msg string) {
	l.logger.Info(msg)
}

func (l logSink) Done(r Result) {
	fields := []zap.Field{
		zap.String("transfer_id", r.TransferID.String()),
		zap.String("outcome", r.Outcome.Name()),
		zap.Uint16("log_id", r.Entry.ID),
		zap.Uint32("size", r.Entry.Size),
		zap.Duration("duration", r.Duration),
	}
	if r.Path != "" {
		fields = append(fields, zap.String("path", r.Path))
	}
	if r.Err != nil {
		l.logger.Warn("transfer finished", append(fields, zap.Error(r.Err))...)
		return
	}
	l.logger.Info("transfer finished", append(fields, zap.Float64("kb_per_s", r.Throughput))...)
}
