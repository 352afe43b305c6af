package link

import (
	"context"
	"sync"

	"github.com/SpatiumPortae/logportal/protocol/mavlink"
	"go.uber.org/zap"
)

const (
	DefaultSystemID    = 255 // Ground control station
	DefaultComponentID = 190 // MAV_COMP_ID_MISSIONPLANNER
)

// Stats counts the traffic of a link.
type Stats struct {
	Sent     int
	Received int
	Dropped  int
}

// Link sends and receives MAVLink log transfer messages over a Conn.
type Link struct {
	conn        Conn
	systemID    uint8
	componentID uint8
	version     mavlink.Version
	logger      *zap.Logger

	mu    sync.Mutex
	seq   uint8
	stats Stats
}

// Option configures a Link.
type Option func(*Link)

func WithSystemID(id uint8) Option {
	return func(l *Link) { l.systemID = id }
}

func WithComponentID(id uint8) Option {
	return func(l *Link) { l.componentID = id }
}

// WithVersion selects the framing used for outgoing messages.
func WithVersion(v mavlink.Version) Option {
	return func(l *Link) { l.version = v }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// New returns a Link over the provided connection.
func New(conn Conn, opts ...Option) *Link {
	l := &Link{
		conn:        conn,
		systemID:    DefaultSystemID,
		componentID: DefaultComponentID,
		version:     mavlink.V2,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Send encodes and writes the message with the next sequence number.
func (l *Link) Send(msg mavlink.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := mavlink.Pack(msg, l.systemID, l.componentID)
	f.Version = l.version
	f.Seq = l.seq
	l.seq++
	if err := l.conn.Write(context.Background(), mavlink.Encode(f)); err != nil {
		return err
	}
	l.stats.Sent++
	return nil
}

// Listen reads from the connection and dispatches every decoded message to the handler
// until the context is cancelled or the connection fails. The handler is called from
// the listening goroutine only.
func (l *Link) Listen(ctx context.Context, handler func(mavlink.Message)) error {
	var parser mavlink.Parser
	for {
		b, err := l.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		frames := parser.Feed(b)

		l.mu.Lock()
		l.stats.Dropped = parser.Dropped()
		l.mu.Unlock()

		for _, f := range frames {
			msg, err := mavlink.Unpack(f)
			if err != nil {
				l.logger.Debug("skipping frame", zap.Uint32("msg_id", uint32(f.MsgID)), zap.Error(err))
				continue
			}
			l.mu.Lock()
			l.stats.Received++
			l.mu.Unlock()
			handler(msg)
		}
	}
}

// Stats returns a copy of the traffic counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Link) Close() error {
	return l.conn.Close()
}
