package shm

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempRegionName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("shijim_test_%d", os.Getpid())
}

func newTestRegion(t *testing.T, slotSize, slotCount uint32) (*Region, *RingWriter) {
	t.Helper()
	name := tempRegionName(t) + "_" + t.Name()
	_ = Remove(name)
	region, err := Create(name, slotSize, slotCount, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		region.Close()
		Remove(name)
	})
	w, err := NewWriter(region, PolicyTruncate)
	require.NoError(t, err)
	return region, w
}

// S1 — happy path publish/consume.
func TestHappyPathPublishConsume(t *testing.T) {
	region, w := newTestRegion(t, DefaultSlotSize, DefaultSlotCount)

	payload := []byte("hello-sbe-frame")
	seq, err := w.Publish(payload)
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq)
	require.Equal(t, uint64(1), w.Cursor())

	r := NewReader(region, true)
	v, ok := r.Latest()
	require.True(t, ok)
	require.Equal(t, payload, v.Payload)
	require.Equal(t, uint64(0), v.Seq)
}

// P3 — round-trip: bytes observed equal bytes published.
func TestRoundTripBytes(t *testing.T) {
	region, w := newTestRegion(t, DefaultSlotSize, DefaultSlotCount)
	r := NewReader(region, true)

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err := w.Publish(payload)
	require.NoError(t, err)

	v, outcome, _ := r.Next()
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, payload, v.Payload)
}

// S3 — burst continuity: 100 frames observed strictly in order, no overrun.
func TestBurstContinuity(t *testing.T) {
	region, w := newTestRegion(t, DefaultSlotSize, DefaultSlotCount)
	r := NewReader(region, true)

	for i := 0; i < 100; i++ {
		_, err := w.Publish([]byte(fmt.Sprintf("price-%d", 100+i)))
		require.NoError(t, err)
	}
	require.Equal(t, uint64(100), w.Cursor())

	for i := 0; i < 100; i++ {
		v, outcome, _ := r.Next()
		require.Equal(t, OutcomeOK, outcome)
		require.Equal(t, fmt.Sprintf("price-%d", 100+i), string(v.Payload))
	}

	_, outcome, _ := r.Next()
	require.Equal(t, OutcomeEmpty, outcome)
}

// S4 — jumbo frame truncation.
func TestJumboFrameTruncation(t *testing.T) {
	region, w := newTestRegion(t, 256, DefaultSlotCount)
	r := NewReader(region, true)

	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = 0xAB
	}
	seq, err := w.Publish(payload)
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq)
	require.Equal(t, uint64(1), w.Cursor())

	v, outcome, _ := r.Next()
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, PayloadCapacity(256), len(v.Payload))
	require.True(t, v.Truncated())
	require.Equal(t, uint64(1), w.TruncatedCount())
}

// PolicyDrop: publish of an oversized payload does not advance the cursor.
func TestDropPolicy(t *testing.T) {
	name := tempRegionName(t) + "_drop"
	_ = Remove(name)
	region, err := Create(name, 256, DefaultSlotCount, true)
	require.NoError(t, err)
	t.Cleanup(func() { region.Close(); Remove(name) })

	w, err := NewWriter(region, PolicyDrop)
	require.NoError(t, err)

	_, err = w.Publish(make([]byte, 300))
	require.ErrorIs(t, err, ErrDropped)
	require.Equal(t, uint64(0), w.Cursor())
	require.Equal(t, uint64(1), w.DroppedCount())
}

// S6 — wrap-around overrun detection.
func TestWrapAroundOverrun(t *testing.T) {
	const n = 1024
	region, w := newTestRegion(t, DefaultSlotSize, n)
	r := NewReader(region, true)

	// Advance the reader to expected_seq=100 by publishing and consuming
	// 100 frames first.
	for i := 0; i < 100; i++ {
		_, err := w.Publish([]byte{byte(i)})
		require.NoError(t, err)
	}
	for i := 0; i < 100; i++ {
		_, outcome, _ := r.Next()
		require.Equal(t, OutcomeOK, outcome)
	}
	require.Equal(t, uint64(100), r.Cursor())

	// Publish enough more frames that write_cursor reaches 2000, lapping
	// slot 100 (2000-100=1900 > 1024, so it has definitely been
	// overwritten since the reader last saw it).
	for i := 100; i < 2000; i++ {
		_, err := w.Publish([]byte{byte(i % 256)})
		require.NoError(t, err)
	}
	require.Equal(t, uint64(2000), w.Cursor())

	_, outcome, gap := r.Next()
	require.Equal(t, OutcomeOverrun, outcome)
	// slot 100 was last (re)written at absolute seq 1124 (100 + 1024);
	// gap is measured against that slot's seq_num, matching spec.md's
	// Overrun{gap=1024} for this exact N=1024/expected_seq=100 scenario.
	require.Equal(t, uint64(1024), gap)
	require.Equal(t, uint64(2000), r.Cursor())
}

func TestCreateRejectsNonPowerOfTwoSlotCount(t *testing.T) {
	_, err := Create(tempRegionName(t)+"_badcount", DefaultSlotSize, 100, true)
	require.Error(t, err)
}

func TestAttachRejectsMagicMismatch(t *testing.T) {
	name := tempRegionName(t) + "_badmagic"
	_ = Remove(name)
	region, err := Create(name, DefaultSlotSize, DefaultSlotCount, true)
	require.NoError(t, err)
	defer func() { region.Close(); Remove(name) }()
	region.hdr.magic = 0xDEADBEEF

	_, err = Attach(name)
	require.Error(t, err)
}

func TestAttachSucceedsFromWriterRegion(t *testing.T) {
	name := tempRegionName(t) + "_attach"
	_ = Remove(name)
	w, err := Create(name, DefaultSlotSize, DefaultSlotCount, true)
	require.NoError(t, err)
	defer func() { w.Close(); Remove(name) }()

	writer, err := NewWriter(w, PolicyTruncate)
	require.NoError(t, err)
	_, err = writer.Publish([]byte("from-producer"))
	require.NoError(t, err)

	attached, err := Attach(name)
	require.NoError(t, err)
	defer attached.Close()

	r := NewReader(attached, true)
	v, ok := r.Latest()
	require.True(t, ok)
	require.Equal(t, "from-producer", string(v.Payload))
}

func TestLagReportsOverrunBoundary(t *testing.T) {
	region, w := newTestRegion(t, DefaultSlotSize, 8)
	for i := 0; i < 20; i++ {
		_, err := w.Publish([]byte{byte(i)})
		require.NoError(t, err)
	}
	lag, overrun := w.Lag(5)
	require.Equal(t, uint64(15), lag)
	require.True(t, overrun)

	lag, overrun = w.Lag(19)
	require.Equal(t, uint64(1), lag)
	require.False(t, overrun)
	_ = region
}

func TestReserveCommitBatch(t *testing.T) {
	region, w := newTestRegion(t, DefaultSlotSize, DefaultSlotCount)
	r := NewReader(region, true)

	start, err := w.Reserve(3)
	require.NoError(t, err)
	require.Equal(t, uint64(0), start)

	w.WriteAt(start, []byte("a"))
	w.WriteAt(start+1, []byte("b"))
	w.WriteAt(start+2, []byte("c"))
	require.NoError(t, w.Commit(start, 3))

	for _, want := range []string{"a", "b", "c"} {
		v, outcome, _ := r.Next()
		require.Equal(t, OutcomeOK, outcome)
		require.Equal(t, want, string(v.Payload))
	}
}
