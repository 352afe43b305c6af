// Package ulog reads the file header of PX4 ULog flight logs.
package ulog

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/SpatiumPortae/logportal/internal/file"
	"github.com/pkg/errors"
)

// HeaderSize is the size of the ULog file header in bytes.
const HeaderSize = 16

var magic = []byte{'U', 'L', 'o', 'g', 0x01, 0x12, 0x35}

var ErrNotULog = errors.New("not a ULog file")

// Header is the fixed header at the start of every ULog file.
type Header struct {
	Version   uint8
	Timestamp uint64 // Microseconds since boot when logging started
}

// Uptime returns the timestamp as a duration.
func (h Header) Uptime() time.Duration {
	return time.Duration(h.Timestamp) * time.Microsecond
}

// ReadHeader reads and validates the header of a ULog stream.
func ReadHeader(r io.Reader) (Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Header{}, errors.Wrap(ErrNotULog, "file is shorter than the header")
		}
		return Header{}, err
	}
	if !bytes.Equal(b[:len(magic)], magic) {
		return Header{}, errors.Wrapf(ErrNotULog, "bad magic %x", b[:len(magic)])
	}
	return Header{
		Version:   b[7],
		Timestamp: binary.LittleEndian.Uint64(b[8:]),
	}, nil
}

// WriteHeader writes a ULog file header.
func WriteHeader(w io.Writer, h Header) error {
	b := make([]byte, 0, HeaderSize)
	b = append(b, magic...)
	b = append(b, h.Version)
	b = binary.LittleEndian.AppendUint64(b, h.Timestamp)
	_, err := w.Write(b)
	return err
}

// Validator checks that a log file starts with a valid ULog header.
type Validator struct{}

func (Validator) Decode(path string) error {
	r, err := file.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = ReadHeader(r)
	return err
}
