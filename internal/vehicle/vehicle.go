// Package vehicle simulates the log transfer side of an autopilot. It serves the
// logs of a directory over a MAVLink link, so that fetching can be exercised
// without hardware.
package vehicle

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/SpatiumPortae/logportal/internal/file"
	"github.com/SpatiumPortae/logportal/protocol/mavlink"
	"go.uber.org/zap"
)

// Sender is the outbound half of the link to the ground station.
type Sender interface {
	Send(msg mavlink.Message) error
}

// Vehicle answers log requests from the catalog.
type Vehicle struct {
	catalog       *Catalog
	out           Sender
	systemID      uint8
	dropRate      float64
	chunkInterval time.Duration
	logger        *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Vehicle)

// WithSystemID sets the system id requests must target. Requests targeting system 0
// are always answered.
func WithSystemID(id uint8) Option {
	return func(v *Vehicle) { v.systemID = id }
}

// WithDropRate drops the provided fraction of LOG_DATA messages.
func WithDropRate(rate float64, seed int64) Option {
	return func(v *Vehicle) {
		v.dropRate = rate
		v.rand = rand.New(rand.NewSource(seed))
	}
}

// WithChunkInterval paces LOG_DATA messages.
func WithChunkInterval(d time.Duration) Option {
	return func(v *Vehicle) { v.chunkInterval = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(v *Vehicle) { v.logger = logger }
}

func New(catalog *Catalog, out Sender, opts ...Option) *Vehicle {
	v := &Vehicle{
		catalog:  catalog,
		out:      out,
		systemID: 1,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Handle answers a request from the ground station.
func (v *Vehicle) Handle(msg mavlink.Message) {
	switch m := msg.(type) {
	case mavlink.LogRequestList:
		if v.targeted(m.TargetSystem) {
			v.sendEntries(m)
		}
	case mavlink.LogRequestData:
		if v.targeted(m.TargetSystem) {
			v.stream(m)
		}
	}
}

// Close stops the running stream and waits for it to exit.
func (v *Vehicle) Close() {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()
	v.wg.Wait()
}

func (v *Vehicle) targeted(system uint8) bool {
	return system == 0 || system == v.systemID
}

func (v *Vehicle) sendEntries(m mavlink.LogRequestList) {
	logs := v.catalog.Logs()
	if len(logs) == 0 {
		v.send(mavlink.LogEntry{})
		return
	}
	// The catalog holds at most MaxLogs entries.
	n := uint16(len(logs))
	end := m.End
	if end >= n {
		end = n - 1
	}
	for id := m.Start; id <= end; id++ {
		log := logs[id]
		v.send(mavlink.LogEntry{
			ID:         id,
			NumLogs:    n,
			LastLogNum: n - 1,
			TimeUTC:    log.TimeUTC,
			Size:       log.Size,
		})
		if id == end {
			break
		}
	}
}

// stream sends the requested range in a goroutine. A new request replaces the running
// stream, the way autopilots restart transfers on LOG_REQUEST_DATA.
func (v *Vehicle) stream(m mavlink.LogRequestData) {
	log, ok := v.catalog.Get(m.ID)
	if !ok || m.Ofs >= log.Size {
		v.logger.Debug("ignoring data request", zap.Uint16("log_id", m.ID), zap.Uint32("ofs", m.Ofs))
		return
	}
	end := log.Size
	if m.Count < end-m.Ofs {
		end = m.Ofs + m.Count
	}

	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		if err := v.sendRange(ctx, m.ID, log.Path, m.Ofs, end); err != nil {
			v.logger.Warn("streaming log", zap.Uint16("log_id", m.ID), zap.Error(err))
		}
	}()
}

func (v *Vehicle) sendRange(ctx context.Context, id uint16, path string, ofs, end uint32) error {
	r, err := file.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := io.CopyN(io.Discard, r, int64(ofs)); err != nil {
		return err
	}

	for ofs < end {
		if ctx.Err() != nil {
			return nil
		}
		msg := mavlink.LogData{ID: id, Ofs: ofs}
		n := end - ofs
		if n > mavlink.LogDataLength {
			n = mavlink.LogDataLength
		}
		if _, err := io.ReadFull(r, msg.Data[:n]); err != nil {
			return err
		}
		msg.Count = uint8(n)
		ofs += n

		if v.drop() {
			continue
		}
		v.send(msg)
		if v.chunkInterval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(v.chunkInterval):
			}
		}
	}
	return nil
}

func (v *Vehicle) drop() bool {
	if v.dropRate <= 0 {
		return false
	}
	v.randMu.Lock()
	defer v.randMu.Unlock()
	return v.rand.Float64() < v.dropRate
}

func (v *Vehicle) send(msg mavlink.Message) {
	if err := v.out.Send(msg); err != nil {
		v.logger.Debug("sending", zap.String("msg", msg.MsgID().Name()), zap.Error(err))
	}
}
