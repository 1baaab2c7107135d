package indicators

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S7 — OFI buy-side add: prev (bid=100.0, 10), now (bid=100.0, 15), ask
// unchanged at (101.0, 10). OFI = +5.
func TestOFIBuySideAdd(t *testing.T) {
	o := NewOFI()
	_, ok := o.Update(BookLevel{Price: 100.0, Size: 10}, BookLevel{Price: 101.0, Size: 10})
	require.False(t, ok) // seed call

	v, ok := o.Update(BookLevel{Price: 100.0, Size: 15}, BookLevel{Price: 101.0, Size: 10})
	require.True(t, ok)
	require.InDelta(t, 5.0, v, 1e-9)
}

// S8 — OFI ask-side drop: prev (ask=101.0, 10), now (ask=101.0, 2).
// ask_contrib = 2 - 10 = -8; OFI = 0 - (-8) = +8.
func TestOFIAskSideDrop(t *testing.T) {
	o := NewOFI()
	o.Update(BookLevel{Price: 100.0, Size: 10}, BookLevel{Price: 101.0, Size: 10})

	v, ok := o.Update(BookLevel{Price: 100.0, Size: 10}, BookLevel{Price: 101.0, Size: 2})
	require.True(t, ok)
	require.InDelta(t, 8.0, v, 1e-9)
}

// S9 — OFI support broken: prev (bid=100.0, 10), now (bid=99.5, 20).
// bid_contrib = -10; OFI = -10.
func TestOFISupportBroken(t *testing.T) {
	o := NewOFI()
	o.Update(BookLevel{Price: 100.0, Size: 10}, BookLevel{Price: 101.0, Size: 10})

	v, ok := o.Update(BookLevel{Price: 99.5, Size: 20}, BookLevel{Price: 101.0, Size: 10})
	require.True(t, ok)
	require.InDelta(t, -10.0, v, 1e-9)
}

func TestOFISamePriceSizeDelta(t *testing.T) {
	o := NewOFI()
	o.Update(BookLevel{Price: 100, Size: 10}, BookLevel{Price: 101, Size: 8})

	v, ok := o.Update(BookLevel{Price: 100, Size: 13}, BookLevel{Price: 101, Size: 5})
	require.True(t, ok)
	// bid contrib: 13-10=3, ask contrib: 5-8=-3, OFI = 3 - (-3) = 6
	require.InDelta(t, 6.0, v, 1e-9)
}

func TestOFIResetClearsSeed(t *testing.T) {
	o := NewOFI()
	o.Update(BookLevel{Price: 100, Size: 10}, BookLevel{Price: 101, Size: 8})
	o.Reset()
	_, ok := o.Update(BookLevel{Price: 50, Size: 1}, BookLevel{Price: 51, Size: 1})
	require.False(t, ok)
}

// P6 — anti-symmetry: swapping which side improved flips the sign.
func TestOFIAntiSymmetry(t *testing.T) {
	up := NewOFI()
	up.Update(BookLevel{Price: 100, Size: 10}, BookLevel{Price: 101, Size: 10})
	v1, _ := up.Update(BookLevel{Price: 100.5, Size: 10}, BookLevel{Price: 101, Size: 10})

	down := NewOFI()
	down.Update(BookLevel{Price: 100, Size: 10}, BookLevel{Price: 101, Size: 10})
	v2, _ := down.Update(BookLevel{Price: 100, Size: 10}, BookLevel{Price: 100.5, Size: 10})

	require.InDelta(t, v1, -v2, 1e-9)
}
