package mavlink_test

import (
	"testing"

	"github.com/SpatiumPortae/logportal/protocol/mavlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg mavlink.Message, version mavlink.Version) mavlink.Message {
	t.Helper()
	f := mavlink.Pack(msg, 255, 190)
	f.Version = version
	f.Seq = 7

	var p mavlink.Parser
	frames := p.Feed(mavlink.Encode(f))
	require.Len(t, frames, 1)
	assert.Equal(t, uint8(7), frames[0].Seq)
	assert.Equal(t, uint8(255), frames[0].SystemID)
	assert.Equal(t, uint8(190), frames[0].ComponentID)

	got, err := mavlink.Unpack(frames[0])
	require.NoError(t, err)
	return got
}

func TestCodec(t *testing.T) {
	var data mavlink.LogData
	data.ID = 3
	data.Ofs = 810
	data.Count = 42
	for i := range data.Data[:42] {
		data.Data[i] = byte(i + 1)
	}

	msgs := []mavlink.Message{
		mavlink.LogRequestList{TargetSystem: 1, TargetComponent: 1, Start: 0, End: 0xFFFF},
		mavlink.LogEntry{ID: 4, NumLogs: 5, LastLogNum: 4, TimeUTC: 1000, Size: 900},
		mavlink.LogRequestData{TargetSystem: 1, TargetComponent: 1, ID: 4, Ofs: 90, Count: 810},
		data,
	}
	for _, version := range []mavlink.Version{mavlink.V1, mavlink.V2} {
		for _, msg := range msgs {
			t.Run(msg.MsgID().Name(), func(t *testing.T) {
				assert.Equal(t, msg, roundTrip(t, msg, version))
			})
		}
	}

	t.Run("zero payload survives truncation", func(t *testing.T) {
		msg := mavlink.LogRequestList{}
		assert.Equal(t, msg, roundTrip(t, msg, mavlink.V2))
	})
}

func TestTruncation(t *testing.T) {
	var data mavlink.LogData
	data.Count = 1
	data.Data[0] = 0xAB
	encoded := mavlink.Encode(mavlink.Pack(data, 1, 1))
	// 10 header bytes, 8 payload bytes left after trimming the zero tail, 2 crc bytes.
	assert.Len(t, encoded, 20)
	assert.Equal(t, byte(8), encoded[1])
}

func TestParser(t *testing.T) {
	entry := mavlink.LogEntry{ID: 1, NumLogs: 2, LastLogNum: 1, TimeUTC: 99, Size: 180}
	encoded := mavlink.Encode(mavlink.Pack(entry, 1, 1))

	t.Run("split across reads", func(t *testing.T) {
		var p mavlink.Parser
		assert.Empty(t, p.Feed(encoded[:5]))
		assert.Empty(t, p.Feed(encoded[5:12]))
		frames := p.Feed(encoded[12:])
		require.Len(t, frames, 1)
		assert.Equal(t, mavlink.LogEntryID, frames[0].MsgID)
	})

	t.Run("leading garbage", func(t *testing.T) {
		var p mavlink.Parser
		stream := append([]byte{0x00, 0x13, 0x37}, encoded...)
		frames := p.Feed(stream)
		require.Len(t, frames, 1)
	})

	t.Run("corrupt frame is dropped", func(t *testing.T) {
		var p mavlink.Parser
		corrupt := append([]byte(nil), encoded...)
		corrupt[len(corrupt)-1] ^= 0xFF
		frames := p.Feed(append(corrupt, encoded...))
		require.Len(t, frames, 1)
		assert.Equal(t, 1, p.Dropped())
	})

	t.Run("unknown message is skipped", func(t *testing.T) {
		// HEARTBEAT (id 0) with a 9 byte payload and an arbitrary checksum.
		heartbeat := []byte{mavlink.MagicV2, 9, 0, 0, 0, 1, 1, 0, 0, 0}
		heartbeat = append(heartbeat, make([]byte, 9+2)...)
		var p mavlink.Parser
		frames := p.Feed(append(heartbeat, encoded...))
		require.Len(t, frames, 1)
		assert.Equal(t, 0, p.Dropped())
	})

	t.Run("several frames in one read", func(t *testing.T) {
		var p mavlink.Parser
		stream := append(append([]byte(nil), encoded...), encoded...)
		assert.Len(t, p.Feed(stream), 2)
	})
}

func TestUnpackErrors(t *testing.T) {
	_, err := mavlink.Unpack(mavlink.Frame{MsgID: 0})
	assert.ErrorIs(t, err, mavlink.ErrUnknownMessage)

	_, err = mavlink.Unpack(mavlink.Frame{MsgID: mavlink.LogEntryID, Payload: make([]byte, 20)})
	assert.ErrorIs(t, err, mavlink.ErrPayloadLength)
}
