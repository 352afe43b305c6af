// frame.go specifies the MAVLink 1 and MAVLink 2 packet framing.
package mavlink

import "encoding/binary"

const (
	MagicV1 = 0xFE
	MagicV2 = 0xFD

	headerLenV1  = 6
	headerLenV2  = 10
	checksumLen  = 2
	signatureLen = 13
	flagSigned   = 0x01
)

// Version specifies the MAVLink framing version.
type Version int

const (
	V2 Version = iota
	V1
)

var payloadLength = map[MsgID]int{
	LogRequestListID: 6,
	LogEntryID:       14,
	LogRequestDataID: 12,
	LogDataID:        97,
}

var crcExtra = map[MsgID]byte{
	LogRequestListID: 128,
	LogEntryID:       56,
	LogRequestDataID: 116,
	LogDataID:        134,
}

// Frame is a single MAVLink packet.
type Frame struct {
	Version     Version
	Seq         uint8
	SystemID    uint8
	ComponentID uint8
	MsgID       MsgID
	Payload     []byte
}

// Pack builds an unsequenced frame carrying the message.
func Pack(msg Message, systemID, componentID uint8) Frame {
	return Frame{
		SystemID:    systemID,
		ComponentID: componentID,
		MsgID:       msg.MsgID(),
		Payload:     msg.marshal(),
	}
}

// Encode serializes the frame. MAVLink 2 frames have their trailing zero payload
// bytes truncated.
func Encode(f Frame) []byte {
	payload := f.Payload
	if f.Version == V1 {
		buf := make([]byte, 0, headerLenV1+len(payload)+checksumLen)
		buf = append(buf, MagicV1, byte(len(payload)), f.Seq, f.SystemID, f.ComponentID, byte(f.MsgID))
		buf = append(buf, payload...)
		return appendChecksum(buf, f.MsgID)
	}

	for len(payload) > 1 && payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}
	buf := make([]byte, 0, headerLenV2+len(payload)+checksumLen)
	buf = append(buf, MagicV2, byte(len(payload)), 0, 0, f.Seq, f.SystemID, f.ComponentID,
		byte(f.MsgID), byte(f.MsgID>>8), byte(f.MsgID>>16))
	buf = append(buf, payload...)
	return appendChecksum(buf, f.MsgID)
}

func appendChecksum(buf []byte, id MsgID) []byte {
	crc := checksum(buf[1:], crcExtra[id])
	return binary.LittleEndian.AppendUint16(buf, crc)
}

// checksum computes CRC-16/MCRF4XX over b followed by the message's CRC_EXTRA byte.
func checksum(b []byte, extra byte) uint16 {
	crc := uint16(0xFFFF)
	for _, v := range b {
		crc = crcAccumulate(v, crc)
	}
	return crcAccumulate(extra, crc)
}

func crcAccumulate(b byte, crc uint16) uint16 {
	tmp := b ^ byte(crc&0xFF)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}
