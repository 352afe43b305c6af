package logfetch

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

// ChunkSize is the number of log bytes carried by one LOG_DATA message.
const ChunkSize = 90

// ChunkCount returns the number of chunks needed to cover size bytes.
func ChunkCount(size uint32) uint32 {
	return uint32((uint64(size) + ChunkSize - 1) / ChunkSize)
}

// ChunkIndex returns the index of the chunk starting at ofs.
func ChunkIndex(ofs uint32) uint32 {
	return ofs / ChunkSize
}

// LogDescriptor describes the log being transferred.
type LogDescriptor struct {
	ID      uint16 `json:"id"`
	Size    uint32 `json:"size"`
	TimeUTC uint32 `json:"time_utc"`
}

// FileName returns the name the log is committed under.
func (d LogDescriptor) FileName() string {
	return fmt.Sprintf("Log-%d-%d", d.ID, d.TimeUTC)
}

// PendingSet tracks the chunks of a log that have not been received yet.
type PendingSet struct {
	bm    *roaring.Bitmap
	total uint32
}

// NewPendingSet returns a set holding every chunk index in [0, total).
func NewPendingSet(total uint32) *PendingSet {
	bm := roaring.New()
	bm.AddRange(0, uint64(total))
	return &PendingSet{bm: bm, total: total}
}

// Remove marks the chunk as received and reports whether it was still pending.
func (p *PendingSet) Remove(i uint32) bool {
	return p.bm.CheckedRemove(i)
}

func (p *PendingSet) Contains(i uint32) bool {
	return p.bm.Contains(i)
}

func (p *PendingSet) Empty() bool {
	return p.bm.IsEmpty()
}

// Len returns the number of pending chunks.
func (p *PendingSet) Len() uint32 {
	return uint32(p.bm.GetCardinality())
}

// First returns the lowest pending chunk index.
func (p *PendingSet) First() (uint32, bool) {
	if p.bm.IsEmpty() {
		return 0, false
	}
	return p.bm.Minimum(), true
}

func (p *PendingSet) Total() uint32 {
	return p.total
}

// Received returns the number of distinct chunks received so far.
func (p *PendingSet) Received() uint32 {
	return p.total - p.Len()
}
