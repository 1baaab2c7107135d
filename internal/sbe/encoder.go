package sbe

import (
	"encoding/binary"
	"fmt"
)

// Encoder is the decoder's dual: a bounds-checked sequential writer used by
// the tests to build frames exercising header, root block, composite
// decimal, repeating groups, and null sentinels (P5 round-trip
// testability). Grounded on
// shijim_core/src/sbe.rs's SbeEncoder.
type Encoder struct {
	buf    []byte
	offset int
}

// NewEncoder wraps buf for sequential encoding starting at offset 0.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

// Offset returns the number of bytes written so far.
func (e *Encoder) Offset() int { return e.offset }

// Bytes returns the written prefix of the backing buffer.
func (e *Encoder) Bytes() []byte { return e.buf[:e.offset] }

func (e *Encoder) checkBounds(n int) error {
	if e.offset+n > len(e.buf) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferUnderflow, n, len(e.buf)-e.offset)
	}
	return nil
}

// WriteHeader writes the 8-byte SBE message header.
func (e *Encoder) WriteHeader(blockLength, templateID, schemaID, version uint16) error {
	if err := e.checkBounds(HeaderSize); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(e.buf[e.offset:], blockLength)
	binary.LittleEndian.PutUint16(e.buf[e.offset+2:], templateID)
	binary.LittleEndian.PutUint16(e.buf[e.offset+4:], schemaID)
	binary.LittleEndian.PutUint16(e.buf[e.offset+6:], version)
	e.offset += HeaderSize
	return nil
}

func (e *Encoder) WriteU8(v uint8) error {
	if err := e.checkBounds(1); err != nil {
		return err
	}
	e.buf[e.offset] = v
	e.offset++
	return nil
}

func (e *Encoder) WriteU16(v uint16) error {
	if err := e.checkBounds(2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(e.buf[e.offset:], v)
	e.offset += 2
	return nil
}

func (e *Encoder) WriteU32(v uint32) error {
	if err := e.checkBounds(4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(e.buf[e.offset:], v)
	e.offset += 4
	return nil
}

func (e *Encoder) WriteU64(v uint64) error {
	if err := e.checkBounds(8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(e.buf[e.offset:], v)
	e.offset += 8
	return nil
}

func (e *Encoder) WriteI32(v int32) error { return e.WriteU32(uint32(v)) }
func (e *Encoder) WriteI64(v int64) error { return e.WriteU64(uint64(v)) }

// WriteDecimal64Raw writes an explicit mantissa/exponent pair — the
// control surface tests use to pin exact bytes (e.g. mantissa=23305,
// exponent=-1 for 2330.5), mirroring SbeEncoder::write_decimal64_raw.
func (e *Encoder) WriteDecimal64Raw(mantissa int64, exponent int8) error {
	if err := e.checkBounds(9); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(e.buf[e.offset:], uint64(mantissa))
	e.buf[e.offset+8] = byte(exponent)
	e.offset += 9
	return nil
}

// WriteDecimal64Null writes the schema null sentinel mantissa.
func (e *Encoder) WriteDecimal64Null() error {
	return e.WriteDecimal64Raw(NullInt64, 0)
}

// Skip advances the write cursor by n zeroed bytes, for padding an entry
// out to its declared block_length.
func (e *Encoder) Skip(n int) error {
	if n <= 0 {
		return nil
	}
	if err := e.checkBounds(n); err != nil {
		return err
	}
	clear(e.buf[e.offset : e.offset+n])
	e.offset += n
	return nil
}

// WriteGroupHeader writes a repeating-group header and pre-checks that the
// full group body fits, so a caller's group-fill loop can't silently
// overrun the buffer mid-entry.
func (e *Encoder) WriteGroupHeader(blockLength, numInGroup uint16) error {
	total := GroupHeaderSize + int(blockLength)*int(numInGroup)
	if err := e.checkBounds(total); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(e.buf[e.offset:], blockLength)
	binary.LittleEndian.PutUint16(e.buf[e.offset+2:], numInGroup)
	e.offset += GroupHeaderSize
	return nil
}
