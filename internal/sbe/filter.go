package sbe

import "sync/atomic"

// HeartbeatTemplateID is the reserved template id dropped pre-publish by
// the framer, regardless of the admitted-id table.
const HeartbeatTemplateID uint16 = 0

// Filter is the table-driven template-id admission filter from spec.md
// §4.2: frames with template_id 0 are always dropped, frames shorter than
// the header or with a block_length exceeding the datagram are malformed
// and dropped, and everything else passes only if admitted (or if no
// admission table was configured, in which case all non-heartbeat,
// well-formed frames pass).
type Filter struct {
	admitted map[uint16]struct{}

	malformed uint64
	heartbeat uint64
	rejected  uint64
}

// NewFilter builds a Filter admitting exactly the given template ids. An
// empty or nil set means "admit everything not a heartbeat or malformed".
func NewFilter(admittedTemplateIDs ...uint16) *Filter {
	f := &Filter{}
	if len(admittedTemplateIDs) > 0 {
		f.admitted = make(map[uint16]struct{}, len(admittedTemplateIDs))
		for _, id := range admittedTemplateIDs {
			f.admitted[id] = struct{}{}
		}
	}
	return f
}

// MalformedCount returns the number of frames dropped for being too short
// or declaring a block_length exceeding the datagram.
func (f *Filter) MalformedCount() uint64 { return atomic.LoadUint64(&f.malformed) }

// HeartbeatCount returns the number of template_id==0 frames dropped.
func (f *Filter) HeartbeatCount() uint64 { return atomic.LoadUint64(&f.heartbeat) }

// RejectedCount returns the number of frames dropped for not being on the
// admission table.
func (f *Filter) RejectedCount() uint64 { return atomic.LoadUint64(&f.rejected) }

// Admit decides whether frame should be published, per §4.2. frame is the
// whole UDP datagram (whole-datagram framing, no length prefix).
func (f *Filter) Admit(frame []byte) bool {
	if len(frame) < HeaderSize {
		atomic.AddUint64(&f.malformed, 1)
		return false
	}
	h, err := DecodeHeader(frame)
	if err != nil {
		atomic.AddUint64(&f.malformed, 1)
		return false
	}
	if int(h.BlockLength) > len(frame) {
		atomic.AddUint64(&f.malformed, 1)
		return false
	}
	if h.TemplateID == HeartbeatTemplateID {
		atomic.AddUint64(&f.heartbeat, 1)
		return false
	}
	if f.admitted != nil {
		if _, ok := f.admitted[h.TemplateID]; !ok {
			atomic.AddUint64(&f.rejected, 1)
			return false
		}
	}
	return true
}
