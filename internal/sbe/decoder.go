package sbe

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decoder wraps a buffer and a read cursor, decoding sequentially and
// bounds-checking every read, per spec.md §4.6. It borrows its buffer —
// no copies are made — so a Decoder must not outlive the slice it wraps.
type Decoder struct {
	buf    []byte
	offset int
}

// NewDecoder wraps buf for sequential decoding starting at offset 0.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Offset returns the current read cursor.
func (d *Decoder) Offset() int { return d.offset }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.offset }

func (d *Decoder) checkBounds(n int) error {
	if d.offset+n > len(d.buf) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferUnderflow, n, len(d.buf)-d.offset)
	}
	return nil
}

// DecodeHeader reads the 8-byte message header and advances the cursor.
func (d *Decoder) DecodeHeader() (Header, error) {
	if err := d.checkBounds(HeaderSize); err != nil {
		return Header{}, err
	}
	h, err := DecodeHeader(d.buf[d.offset:])
	if err != nil {
		return Header{}, err
	}
	d.offset += HeaderSize
	return h, nil
}

// Skip advances the cursor by n bytes without interpreting them — used to
// jump past a root block once its fixed fields have been read, landing at
// block_length from the header regardless of how many fields this decoder
// actually read.
func (d *Decoder) Skip(n int) error {
	if err := d.checkBounds(n); err != nil {
		return err
	}
	d.offset += n
	return nil
}

// SeekRootBlockEnd advances the cursor to the end of the root block, given
// the header's block_length and the offset where the root block began
// (immediately after the header).
func (d *Decoder) SeekRootBlockEnd(rootBlockStart int, blockLength uint16) error {
	end := rootBlockStart + int(blockLength)
	if end < d.offset {
		return fmt.Errorf("%w: root block end %d before current cursor %d", ErrMalformedComposite, end, d.offset)
	}
	if end > len(d.buf) {
		return fmt.Errorf("%w: root block end %d exceeds buffer length %d", ErrBufferUnderflow, end, len(d.buf))
	}
	d.offset = end
	return nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	if err := d.checkBounds(1); err != nil {
		return 0, err
	}
	v := d.buf[d.offset]
	d.offset++
	return v, nil
}

func (d *Decoder) ReadU16() (uint16, error) {
	if err := d.checkBounds(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.offset:])
	d.offset += 2
	return v, nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	if err := d.checkBounds(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.offset:])
	d.offset += 4
	return v, nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	if err := d.checkBounds(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.offset:])
	d.offset += 8
	return v, nil
}

func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Decoder) ReadI64() (int64, error) {
	v, err := d.ReadU64()
	return int64(v), err
}

// Decimal64 is the composite {mantissa: i64, exponent: i8} price/quantity
// type. ToFloat reconstructs mantissa × 10^exponent exactly for the
// exponents in normal use (see spec.md §4.6's 2330.5 example).
type Decimal64 struct {
	Mantissa int64
	Exponent int8
}

// ToFloat converts the composite to a float64.
func (d Decimal64) ToFloat() float64 {
	return float64(d.Mantissa) * math.Pow10(int(d.Exponent))
}

// OptionalDecimal64 is the Present(v)|Absent outcome for a nullable
// Decimal64 field — the sentinel integer never leaks upward (spec.md §9).
type OptionalDecimal64 struct {
	Value   Decimal64
	Present bool
}

// ReadDecimal64 reads a 9-byte composite decimal, returning Present(v) if
// the raw mantissa differs from the schema null sentinel, or Absent
// otherwise.
func (d *Decoder) ReadDecimal64() (OptionalDecimal64, error) {
	if err := d.checkBounds(9); err != nil {
		return OptionalDecimal64{}, err
	}
	mantissa := int64(binary.LittleEndian.Uint64(d.buf[d.offset : d.offset+8]))
	exponent := int8(d.buf[d.offset+8])
	d.offset += 9

	if mantissa == NullInt64 {
		return OptionalDecimal64{Present: false}, nil
	}
	return OptionalDecimal64{Value: Decimal64{Mantissa: mantissa, Exponent: exponent}, Present: true}, nil
}

// GroupHeader is the {block_length, num_in_group} prefix of a repeating
// group.
type GroupHeader struct {
	BlockLength uint16
	NumInGroup  uint16
}

// DecodeGroupHeader reads a 4-byte repeating-group header and
// bounds-checks that the entire group (block_length × num_in_group bytes)
// actually fits in the remaining buffer, so a malformed declaration fails
// fast before any entry is parsed (spec.md §4.6, S12).
func (d *Decoder) DecodeGroupHeader() (GroupHeader, error) {
	if err := d.checkBounds(GroupHeaderSize); err != nil {
		return GroupHeader{}, err
	}
	gh := GroupHeader{
		BlockLength: binary.LittleEndian.Uint16(d.buf[d.offset : d.offset+2]),
		NumInGroup:  binary.LittleEndian.Uint16(d.buf[d.offset+2 : d.offset+4]),
	}
	d.offset += GroupHeaderSize

	total := int(gh.BlockLength) * int(gh.NumInGroup)
	if err := d.checkBounds(total); err != nil {
		return GroupHeader{}, err
	}
	return gh, nil
}

// Entry returns a sub-decoder bound to the next entry (the one at the
// current cursor) of a group decoded via DecodeGroupHeader, and advances
// this decoder past it; call it once per entry, in order.
// Entries, and any groups nested within them, are decoded recursively by
// the caller using the returned sub-decoder.
func (d *Decoder) Entry(gh GroupHeader) (*Decoder, error) {
	if err := d.checkBounds(int(gh.BlockLength)); err != nil {
		return nil, err
	}
	entry := &Decoder{buf: d.buf[d.offset : d.offset+int(gh.BlockLength)]}
	d.offset += int(gh.BlockLength)
	return entry, nil
}
