package link

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	readBufferSize = 1024
	pollInterval   = 100 * time.Millisecond
)

var ErrNoPeer = errors.New("no peer has connected yet")

// Conn is an interface that wraps a byte oriented vehicle connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, b []byte) error
	Close() error
}

// ------------------------------------------------------ Stream -------------------------------------------------------

// Stream is a Conn over a byte stream such as a serial port.
// Reads on the underlying stream are expected to time out on their own and return
// zero bytes, which gives Read the chance to observe the context.
type Stream struct {
	rwc io.ReadWriteCloser
	mu  sync.Mutex
}

// NewStream wraps the provided stream.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{rwc: rwc}
}

// OpenSerial opens the serial device at the provided baud rate.
func OpenSerial(device string, baud int) (*Stream, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, err
	}
	return NewStream(port), nil
}

func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.rwc.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *Stream) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.rwc.Write(b)
	return err
}

func (s *Stream) Close() error {
	return s.rwc.Close()
}

// -------------------------------------------------------- UDP --------------------------------------------------------

// UDP is a Conn over a UDP socket. In listening mode replies go to the most
// recent peer, the way autopilots and ground stations pair on port 14550.
type UDP struct {
	conn   *net.UDPConn
	listen bool

	mu   sync.Mutex
	peer *net.UDPAddr
}

// DialUDP connects to a listening vehicle (udpout).
func DialUDP(addr string) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &UDP{conn: conn}, nil
}

// ListenUDP waits for a peer on the provided address (udpin).
func ListenUDP(addr string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &UDP{conn: conn, listen: true}, nil
}

// LocalAddr returns the bound local address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) Read(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 65535)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := u.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return nil, err
		}
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			var nErr net.Error
			if errors.As(err, &nErr) && nErr.Timeout() {
				continue
			}
			return nil, err
		}
		if u.listen {
			u.mu.Lock()
			u.peer = addr
			u.mu.Unlock()
		}
		return buf[:n], nil
	}
}

func (u *UDP) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !u.listen {
		_, err := u.conn.Write(b)
		return err
	}
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()
	if peer == nil {
		return ErrNoPeer
	}
	_, err := u.conn.WriteToUDP(b, peer)
	return err
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
