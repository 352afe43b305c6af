// messages.go specifies the MAVLink messages used by the log transfer protocol.
package mavlink

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// MsgID specifies the MAVLink message id of a log transfer message.
type MsgID uint32

const (
	LogRequestListID MsgID = 117 // Ground station asks for the log entries in an id range
	LogEntryID       MsgID = 118 // Vehicle describes one available log
	LogRequestDataID MsgID = 119 // Ground station asks for a byte range of a log
	LogDataID        MsgID = 120 // Vehicle sends one chunk of a log
)

// LogDataLength is the maximum payload of a single LOG_DATA message.
const LogDataLength = 90

var ErrUnknownMessage = errors.New("unknown message id")
var ErrPayloadLength = errors.New("payload exceeds message length")

// Message is one of the log transfer messages. The set is closed, only the types
// declared in this package implement it.
type Message interface {
	MsgID() MsgID
	marshal() []byte
}

// LogRequestList asks the vehicle for the entries with ids in [Start, End].
type LogRequestList struct {
	TargetSystem    uint8
	TargetComponent uint8
	Start           uint16
	End             uint16
}

// LogEntry describes one log stored on the vehicle.
type LogEntry struct {
	ID         uint16
	NumLogs    uint16
	LastLogNum uint16
	TimeUTC    uint32
	Size       uint32
}

// LogRequestData asks the vehicle to stream Count bytes of log ID starting at Ofs.
type LogRequestData struct {
	TargetSystem    uint8
	TargetComponent uint8
	ID              uint16
	Ofs             uint32
	Count           uint32
}

// LogData carries Count bytes of log ID at offset Ofs.
type LogData struct {
	ID    uint16
	Ofs   uint32
	Count uint8
	Data  [LogDataLength]byte
}

func (LogRequestList) MsgID() MsgID { return LogRequestListID }
func (LogEntry) MsgID() MsgID       { return LogEntryID }
func (LogRequestData) MsgID() MsgID { return LogRequestDataID }
func (LogData) MsgID() MsgID        { return LogDataID }

// Payload returns the valid bytes of the chunk.
func (d LogData) Payload() []byte {
	n := int(d.Count)
	if n > LogDataLength {
		n = LogDataLength
	}
	return d.Data[:n]
}

// Fields are laid out by descending size, as MAVLink requires.

func (m LogRequestList) marshal() []byte {
	b := make([]byte, payloadLength[LogRequestListID])
	binary.LittleEndian.PutUint16(b[0:], m.Start)
	binary.LittleEndian.PutUint16(b[2:], m.End)
	b[4] = m.TargetSystem
	b[5] = m.TargetComponent
	return b
}

func (m LogEntry) marshal() []byte {
	b := make([]byte, payloadLength[LogEntryID])
	binary.LittleEndian.PutUint32(b[0:], m.TimeUTC)
	binary.LittleEndian.PutUint32(b[4:], m.Size)
	binary.LittleEndian.PutUint16(b[8:], m.ID)
	binary.LittleEndian.PutUint16(b[10:], m.NumLogs)
	binary.LittleEndian.PutUint16(b[12:], m.LastLogNum)
	return b
}

func (m LogRequestData) marshal() []byte {
	b := make([]byte, payloadLength[LogRequestDataID])
	binary.LittleEndian.PutUint32(b[0:], m.Ofs)
	binary.LittleEndian.PutUint32(b[4:], m.Count)
	binary.LittleEndian.PutUint16(b[8:], m.ID)
	b[10] = m.TargetSystem
	b[11] = m.TargetComponent
	return b
}

func (m LogData) marshal() []byte {
	b := make([]byte, payloadLength[LogDataID])
	binary.LittleEndian.PutUint32(b[0:], m.Ofs)
	binary.LittleEndian.PutUint16(b[4:], m.ID)
	b[6] = m.Count
	copy(b[7:], m.Data[:])
	return b
}

// Unpack decodes the payload of the frame into its message. Payloads truncated by
// MAVLink 2 are zero-extended first.
func Unpack(f Frame) (Message, error) {
	length, ok := payloadLength[f.MsgID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMessage, "unpacking message %d", f.MsgID)
	}
	if len(f.Payload) > length {
		return nil, errors.Wrapf(ErrPayloadLength, "unpacking %s (%d > %d)", f.MsgID.Name(), len(f.Payload), length)
	}
	b := make([]byte, length)
	copy(b, f.Payload)

	switch f.MsgID {
	case LogRequestListID:
		return LogRequestList{
			Start:           binary.LittleEndian.Uint16(b[0:]),
			End:             binary.LittleEndian.Uint16(b[2:]),
			TargetSystem:    b[4],
			TargetComponent: b[5],
		}, nil
	case LogEntryID:
		return LogEntry{
			TimeUTC:    binary.LittleEndian.Uint32(b[0:]),
			Size:       binary.LittleEndian.Uint32(b[4:]),
			ID:         binary.LittleEndian.Uint16(b[8:]),
			NumLogs:    binary.LittleEndian.Uint16(b[10:]),
			LastLogNum: binary.LittleEndian.Uint16(b[12:]),
		}, nil
	case LogRequestDataID:
		return LogRequestData{
			Ofs:             binary.LittleEndian.Uint32(b[0:]),
			Count:           binary.LittleEndian.Uint32(b[4:]),
			ID:              binary.LittleEndian.Uint16(b[8:]),
			TargetSystem:    b[10],
			TargetComponent: b[11],
		}, nil
	default:
		msg := LogData{
			Ofs:   binary.LittleEndian.Uint32(b[0:]),
			ID:    binary.LittleEndian.Uint16(b[4:]),
			Count: b[6],
		}
		copy(msg.Data[:], b[7:])
		return msg, nil
	}
}

// Name returns the MAVLink name of the message id.
func (id MsgID) Name() string {
	switch id {
	case LogRequestListID:
		return "LOG_REQUEST_LIST"
	case LogEntryID:
		return "LOG_ENTRY"
	case LogRequestDataID:
		return "LOG_REQUEST_DATA"
	case LogDataID:
		return "LOG_DATA"
	default:
		return fmt.Sprintf("MSG_%d", uint32(id))
	}
}
