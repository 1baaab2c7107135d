package shm

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// View is a zero-copy handle onto a published slot's payload. It borrows
// directly from the mapped region; per spec.md §4.5/§9 the consumer must
// finish using it before calling Next/Latest again, since the producer may
// overwrite the backing slot at any time — there is no cross-process
// borrow check. Copy out any fields you need to retain past this call.
type View struct {
	Seq         uint64
	Flags       uint16
	PublishTsNs uint64
	Payload     []byte
}

// Truncated reports whether the producer truncated this slot's payload.
func (v View) Truncated() bool { return v.Flags&FlagTruncated != 0 }

// RingReader tracks one consumer's position in a Region's ring. Consumers
// are independent: each owns its own expected_seq and never blocks the
// producer or other consumers.
type RingReader struct {
	region      *Region
	mask        uint32
	expectedSeq uint64

	transientMiss uint64
	overruns      uint64
}

// NewReader attaches a reader to region. If fromStart is true, the reader
// begins at sequence 0 (replay-from-start); otherwise it begins at the
// region's current write_cursor (latest-only start).
func NewReader(region *Region, fromStart bool) *RingReader {
	r := &RingReader{region: region, mask: region.slotCount - 1}
	if !fromStart {
		r.expectedSeq = atomic.LoadUint64(&region.hdr.writeCursor)
	}
	return r
}

// Cursor returns the reader's current expected_seq.
func (r *RingReader) Cursor() uint64 { return r.expectedSeq }

// Advance sets expected_seq to max(expected_seq, seq).
func (r *RingReader) Advance(seq uint64) {
	if seq > r.expectedSeq {
		r.expectedSeq = seq
	}
}

// TransientMissCount returns how many times Latest observed write_cursor
// and the candidate slot in a momentarily inconsistent state. Per
// spec.md's open question, this is not retried internally — Latest simply
// returns (View{}, false) and increments this counter, keeping the call
// latency-bounded and uniform.
func (r *RingReader) TransientMissCount() uint64 { return atomic.LoadUint64(&r.transientMiss) }

// OverrunCount returns the number of Overrun outcomes this reader has
// observed.
func (r *RingReader) OverrunCount() uint64 { return atomic.LoadUint64(&r.overruns) }

func (r *RingReader) loadCursor() uint64 {
	return atomic.LoadUint64(&r.region.hdr.writeCursor)
}

func (r *RingReader) slotBytes(idx uint32) []byte {
	off := r.region.slotOffset(idx)
	return r.region.data[off : off+int(r.region.slotSize)]
}

func loadSeq(slot []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&slot[0])))
}

func readView(slot []byte, seq uint64) View {
	payloadLen := binary.LittleEndian.Uint16(slot[8:10])
	flags := binary.LittleEndian.Uint16(slot[10:12])
	ts := binary.LittleEndian.Uint64(slot[12:20])
	return View{
		Seq:         seq,
		Flags:       flags,
		PublishTsNs: ts,
		Payload:     slot[SlotHeaderSize : SlotHeaderSize+int(payloadLen)],
	}
}

// Latest snapshots the most recently published slot without disturbing
// expected_seq. Returns (View, true) or (View{}, false) if the ring is
// empty or a transient race was observed between reading write_cursor and
// validating the candidate slot's seq_num.
func (r *RingReader) Latest() (View, bool) {
	c := r.loadCursor()
	if c == 0 {
		return View{}, false
	}
	idx := uint32(c-1) & r.mask
	slot := r.slotBytes(idx)
	seq := loadSeq(slot)
	if seq != c-1 {
		atomic.AddUint64(&r.transientMiss, 1)
		return View{}, false
	}
	return readView(slot, seq), true
}

// Next advances the reader by one slot, implementing the §4.5 state
// machine: Empty when caught up to write_cursor, a validated zero-copy
// View on a matching seq_num (re-checked after read for torn-read
// detection), Overrun when the producer has lapped this reader (advancing
// expected_seq to write_cursor, skip-to-latest), or treated as Empty when
// the slot is stale (not yet (re)written up to expected_seq). gap is only
// meaningful when outcome is OutcomeOverrun, matching the Overrun{gap}
// contract in spec.md §4.5/S6.
func (r *RingReader) Next() (view View, outcome Outcome, gap uint64) {
	wc := r.loadCursor()
	if r.expectedSeq == wc {
		return View{}, OutcomeEmpty, 0
	}

	idx := r.expectedSeq & uint64(r.mask)
	slot := r.slotBytes(uint32(idx))
	seq := loadSeq(slot)

	switch {
	case seq == r.expectedSeq:
		v := readView(slot, seq)
		// Re-reading seq_num is the only torn-read signal available across
		// process boundaries (no borrow checker can help here).
		if again := loadSeq(slot); again != seq {
			atomic.AddUint64(&r.overruns, 1)
			g := r.loadCursor() - r.expectedSeq
			r.expectedSeq = r.loadCursor()
			return View{}, OutcomeOverrun, g
		}
		r.expectedSeq++
		return v, OutcomeOK, 0

	case seq > r.expectedSeq:
		g := seq - r.expectedSeq
		atomic.AddUint64(&r.overruns, 1)
		r.expectedSeq = r.loadCursor()
		return View{}, OutcomeOverrun, g

	default: // seq < expectedSeq: stale, not yet (re)written
		return View{}, OutcomeEmpty, 0
	}
}
