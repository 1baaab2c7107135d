package shm

import "errors"

// ErrDropped is returned by Publish when PolicyDrop rejects an oversized
// payload; write_cursor is not advanced.
var ErrDropped = errors.New("shm: payload dropped (oversized under drop policy)")

// Outcome tags a RingReader.Next result without allocating an error for
// the common, expected cases (Empty is not exceptional).
type Outcome uint8

const (
	// OutcomeOK means View holds a validated, bound slot.
	OutcomeOK Outcome = iota
	// OutcomeEmpty means expected_seq has caught up to write_cursor.
	OutcomeEmpty
	// OutcomeOverrun means the producer overwrote the expected slot before
	// it was read; Gap reports how many sequences were skipped.
	OutcomeOverrun
)
