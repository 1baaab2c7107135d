// Package shm implements the single-producer/multi-consumer shared-memory
// ring buffer: region lifecycle, lock-free publish, and zero-copy consumer
// reads, laid out exactly as the wire-format header and slot described in
// the core's binary schema.
package shm

import "unsafe"

const (
	// Magic identifies the region's binary schema ("SHJM").
	Magic uint32 = 0x53484A4D
	// Version is the current header/slot layout version.
	Version uint16 = 1

	// HeaderSize is the fixed, 64-byte-aligned header footprint.
	HeaderSize = 128
	// CacheLineSize is the alignment unit for the header's write_cursor
	// field and for each slot, to avoid false sharing.
	CacheLineSize = 64

	// SlotHeaderSize is the fixed per-slot metadata footprint:
	// seq_num(8) + payload_len(2) + flags(2) + publish_ts_ns(8).
	SlotHeaderSize = 20

	// DefaultSlotCount is the default ring capacity (power of two).
	DefaultSlotCount = 1024
	// DefaultSlotSize is the default per-slot footprint in bytes.
	DefaultSlotSize = 256

	// FlagTruncated marks a slot whose payload was truncated at publish.
	FlagTruncated uint16 = 1 << 0
)

// header mirrors the 128-byte region header. Field order and widths are
// fixed wire format; do not reorder. write_cursor lives alone at offset 64
// so it occupies its own cache line, away from the read-mostly identity
// fields above it.
type header struct {
	magic       uint32
	version     uint16
	slotSize    uint16
	slotCount   uint32
	producerPID uint32
	createdNs   uint64
	_pad0       [40]byte // pad first cache line (0..64) around identity fields
	writeCursor uint64   // offset 64: own, exclusive cache line
	_pad1       [56]byte // pad second cache line (64..128)
}

func init() {
	if unsafe.Sizeof(header{}) != HeaderSize {
		panic("shm: header layout size mismatch")
	}
}

// OverflowPolicy selects RingWriter behavior when a payload exceeds slot
// capacity.
type OverflowPolicy uint8

const (
	// PolicyTruncate writes the first capacity bytes and sets FlagTruncated.
	PolicyTruncate OverflowPolicy = iota
	// PolicyDrop returns without advancing write_cursor.
	PolicyDrop
)

// PayloadCapacity returns the usable payload bytes for a given slot size.
func PayloadCapacity(slotSize uint32) int {
	return int(slotSize) - SlotHeaderSize
}
