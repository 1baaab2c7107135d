package shm

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"
)

// RingWriter is the single producer's handle to a writable Region. Per
// spec.md §4.4/§5, concurrent publishers are undefined behavior; this type
// enforces nothing at runtime and must be owned by exactly one goroutine
// (or, across processes, exactly one producer process).
type RingWriter struct {
	region   *Region
	policy   OverflowPolicy
	mask     uint32

	truncated uint64
	dropped   uint64
}

// NewWriter wraps a writable Region for publishing. policy controls the
// behavior when a payload exceeds the region's per-slot capacity.
func NewWriter(region *Region, policy OverflowPolicy) (*RingWriter, error) {
	if !region.writable {
		return nil, fmt.Errorf("shm: region is not writable")
	}
	return &RingWriter{region: region, policy: policy, mask: region.slotCount - 1}, nil
}

func (w *RingWriter) cursorPtr() *uint64 {
	return &w.region.hdr.writeCursor
}

// Cursor returns the current write_cursor value (relaxed — only the
// producer itself should rely on this for sequencing decisions).
func (w *RingWriter) Cursor() uint64 {
	return atomic.LoadUint64(w.cursorPtr())
}

// TruncatedCount returns the number of publishes truncated due to an
// oversized payload under PolicyTruncate.
func (w *RingWriter) TruncatedCount() uint64 { return atomic.LoadUint64(&w.truncated) }

// DroppedCount returns the number of publishes dropped due to an oversized
// payload under PolicyDrop.
func (w *RingWriter) DroppedCount() uint64 { return atomic.LoadUint64(&w.dropped) }

// Publish writes payload into the next slot and advances write_cursor,
// implementing the §4.4 publish contract: reserve slot, apply overflow
// policy, copy payload, release-fence the slot's seq_num, release-fence
// write_cursor. Returns the assigned sequence number.
func (w *RingWriter) Publish(payload []byte) (uint64, error) {
	k := atomic.LoadUint64(w.cursorPtr())
	idx := uint32(k) & w.mask

	flags, body, ok := w.applyOverflowPolicy(payload)
	if !ok {
		return 0, ErrDropped
	}

	w.writeSlot(idx, k, body, flags)

	atomic.StoreUint64(w.cursorPtr(), k+1)
	return k, nil
}

// Reserve returns the current write_cursor as the start of a batch of n
// slots the caller intends to fill via WriteAt before calling Commit. This
// is the reserve/commit supplement from the original Rust core
// (rust_core/src/ipc/ring_buffer.rs), letting a burst of frames publish
// with a single cursor fence instead of one per frame.
func (w *RingWriter) Reserve(n uint64) (uint64, error) {
	if n > uint64(w.region.slotCount) {
		return 0, fmt.Errorf("shm: batch of %d exceeds ring capacity %d", n, w.region.slotCount)
	}
	return atomic.LoadUint64(w.cursorPtr()), nil
}

// WriteAt writes payload into the slot for sequence seq without advancing
// write_cursor. Must be used together with Reserve/Commit.
func (w *RingWriter) WriteAt(seq uint64, payload []byte) {
	idx := uint32(seq) & w.mask
	flags, body, ok := w.applyOverflowPolicy(payload)
	if !ok {
		return
	}
	w.writeSlot(idx, seq, body, flags)
}

// Commit publishes a previously reserved batch [start, start+n) with a
// single release-fenced write_cursor store.
func (w *RingWriter) Commit(start, n uint64) error {
	if n > uint64(w.region.slotCount) {
		return fmt.Errorf("shm: batch of %d exceeds ring capacity %d", n, w.region.slotCount)
	}
	atomic.StoreUint64(w.cursorPtr(), start+n)
	return nil
}

// Lag reports how far behind a consumer's reported cursor is from the
// current write_cursor, and whether that consumer's view is already
// unrecoverably stale (beyond ring capacity) — the slow-consumer alert from
// the original Rust core, exposed for a monitoring collaborator to poll.
func (w *RingWriter) Lag(consumerCursor uint64) (lag uint64, overrun bool) {
	wc := atomic.LoadUint64(w.cursorPtr())
	if wc < consumerCursor {
		return 0, false
	}
	lag = wc - consumerCursor
	return lag, lag > uint64(w.region.slotCount)
}

// applyOverflowPolicy trims payload to capacity (PolicyTruncate) or
// signals drop (PolicyDrop, ok=false) when payload exceeds the slot's
// usable capacity. Returns the flags to set and the body to copy.
func (w *RingWriter) applyOverflowPolicy(payload []byte) (flags uint16, body []byte, ok bool) {
	cap := PayloadCapacity(w.region.slotSize)
	if len(payload) <= cap {
		return 0, payload, true
	}
	switch w.policy {
	case PolicyDrop:
		atomic.AddUint64(&w.dropped, 1)
		return 0, nil, false
	default: // PolicyTruncate
		atomic.AddUint64(&w.truncated, 1)
		return FlagTruncated, payload[:cap], true
	}
}

func (w *RingWriter) writeSlot(idx uint32, seq uint64, body []byte, flags uint16) {
	off := w.region.slotOffset(idx)
	slot := w.region.data[off : off+int(w.region.slotSize)]

	payloadLen := len(body)
	copy(slot[SlotHeaderSize:], body)
	binary.LittleEndian.PutUint16(slot[8:10], uint16(payloadLen))
	binary.LittleEndian.PutUint16(slot[10:12], flags)
	binary.LittleEndian.PutUint64(slot[12:20], uint64(time.Now().UnixNano()))

	// Release fence: seq_num is stored after the payload and metadata are
	// in place (I4). A reader that observes this seq_num via an acquire
	// load is guaranteed to observe everything written above it.
	seqPtr := (*uint64)(unsafe.Pointer(&slot[0]))
	atomic.StoreUint64(seqPtr, seq)
}
