package mavlink

import "encoding/binary"

type decodeStatus int

const (
	decodeOK decodeStatus = iota
	decodeIncomplete
	decodeSkip    // well formed but not ours, skip the whole frame
	decodeCorrupt // bad checksum, resync on the next magic byte
)

// Parser extracts frames from a byte stream. Partial frames are kept until the
// remaining bytes arrive. Parser is not safe for concurrent use.
type Parser struct {
	buf     []byte
	dropped int
}

// Feed appends b to the stream and returns every complete, valid frame.
func (p *Parser) Feed(b []byte) []Frame {
	p.buf = append(p.buf, b...)
	var frames []Frame
	for {
		start := nextMagic(p.buf)
		if start < 0 {
			p.buf = p.buf[:0]
			return frames
		}
		p.buf = p.buf[start:]

		f, n, status := decode(p.buf)
		switch status {
		case decodeIncomplete:
			return frames
		case decodeCorrupt:
			p.dropped++
			p.buf = p.buf[1:]
		case decodeSkip:
			p.buf = p.buf[n:]
		case decodeOK:
			frames = append(frames, f)
			p.buf = p.buf[n:]
		}
	}
}

// Dropped returns the number of frames discarded because of a bad checksum.
func (p *Parser) Dropped() int {
	return p.dropped
}

func nextMagic(b []byte) int {
	for i, v := range b {
		if v == MagicV1 || v == MagicV2 {
			return i
		}
	}
	return -1
}

func decode(b []byte) (Frame, int, decodeStatus) {
	if len(b) < 2 {
		return Frame{}, 0, decodeIncomplete
	}
	length := int(b[1])

	var f Frame
	var headerLen, total int
	if b[0] == MagicV1 {
		headerLen = headerLenV1
		total = headerLen + length + checksumLen
		if len(b) < total {
			return Frame{}, 0, decodeIncomplete
		}
		f = Frame{
			Version:     V1,
			Seq:         b[2],
			SystemID:    b[3],
			ComponentID: b[4],
			MsgID:       MsgID(b[5]),
		}
	} else {
		headerLen = headerLenV2
		if len(b) < headerLen {
			return Frame{}, 0, decodeIncomplete
		}
		total = headerLen + length + checksumLen
		if b[2]&flagSigned != 0 {
			total += signatureLen
		}
		if len(b) < total {
			return Frame{}, 0, decodeIncomplete
		}
		f = Frame{
			Version:     V2,
			Seq:         b[4],
			SystemID:    b[5],
			ComponentID: b[6],
			MsgID:       MsgID(uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16),
		}
	}

	extra, ok := crcExtra[f.MsgID]
	if !ok {
		return Frame{}, total, decodeSkip
	}
	end := headerLen + length
	if checksum(b[1:end], extra) != binary.LittleEndian.Uint16(b[end:]) {
		return Frame{}, 0, decodeCorrupt
	}
	f.Payload = append([]byte(nil), b[headerLen:end]...)
	return f, total, decodeOK
}
