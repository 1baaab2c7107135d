package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHawkesFirstEventJumpsFromBaseline(t *testing.T) {
	h := NewHawkesState(1.0, 0.5, 2.0)
	v, err := h.Update(0)
	require.NoError(t, err)
	require.InDelta(t, 1.5, v, 1e-9)
}

func TestHawkesDecaysTowardBaselineBetweenEvents(t *testing.T) {
	h := NewHawkesState(1.0, 0.5, 2.0)
	_, err := h.Update(0) // intensity = 1.5
	require.NoError(t, err)

	// Immediately after, with no further event, intensity should decay
	// toward baseline as dt grows.
	far, err := h.IntensityAt(100)
	require.NoError(t, err)
	require.InDelta(t, 1.0, far, 1e-6)

	close, err := h.IntensityAt(0)
	require.NoError(t, err)
	require.InDelta(t, 1.5, close, 1e-9)
}

func TestHawkesSecondEventDecaysThenJumps(t *testing.T) {
	h := NewHawkesState(1.0, 0.5, 2.0)
	_, err := h.Update(0) // 1.5
	require.NoError(t, err)

	dt := 1.0
	want := 1.0 + (1.5-1.0)*math.Exp(-2.0*dt) + 0.5
	got, err := h.Update(dt)
	require.NoError(t, err)
	require.InDelta(t, want, got, 1e-9)
}

func TestHawkesResetReturnsToBaseline(t *testing.T) {
	h := NewHawkesState(1.0, 0.5, 2.0)
	_, err := h.Update(0)
	require.NoError(t, err)
	_, err = h.Update(1)
	require.NoError(t, err)
	h.Reset()
	require.InDelta(t, 1.0, h.CurrentIntensity(), 1e-9)
	v, err := h.IntensityAt(50)
	require.NoError(t, err)
	require.InDelta(t, 1.0, v, 1e-9)
}

func TestHawkesRejectsOutOfOrderUpdate(t *testing.T) {
	h := NewHawkesState(1.0, 0.5, 2.0)
	_, err := h.Update(10)
	require.NoError(t, err)

	before := h.CurrentIntensity()
	_, err = h.Update(5)
	require.ErrorIs(t, err, ErrTimestampOutOfOrder)
	require.Equal(t, uint64(1), h.OutOfOrderCount())
	// Rejected update must not mutate state.
	require.Equal(t, before, h.CurrentIntensity())

	_, err = h.IntensityAt(5)
	require.ErrorIs(t, err, ErrTimestampOutOfOrder)
	require.Equal(t, uint64(2), h.OutOfOrderCount())
}

func TestHawkesToleratesSubEpsilonJitter(t *testing.T) {
	h := NewHawkesState(1.0, 0.5, 2.0)
	_, err := h.Update(10)
	require.NoError(t, err)

	_, err = h.Update(10 - minTimeEps/2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), h.OutOfOrderCount())
}

func TestMultivariateHawkesCrossExcitation(t *testing.T) {
	n := 2
	baseline := []float64{1.0, 1.0}
	beta := []float64{2.0, 2.0}
	alpha := []float64{
		0.5, 0.3, // src=0: self=0.5, cross into 1=0.3
		0.2, 0.4, // src=1: cross into 0=0.2, self=0.4
	}
	m := NewMultivariateHawkes(baseline, beta, alpha, n)

	m.Update(0, 0)
	require.InDelta(t, 1.5, m.Intensity(0), 1e-9) // 1.0 + 0.5 self jump
	require.InDelta(t, 1.3, m.Intensity(1), 1e-9) // 1.0 + 0.3 cross jump
}

func TestMultivariateHawkesResetClearsAll(t *testing.T) {
	n := 1
	m := NewMultivariateHawkes([]float64{2.0}, []float64{1.0}, []float64{1.0}, n)
	m.Update(0, 0)
	require.NotEqual(t, 2.0, m.Intensity(0))
	m.Reset()
	require.InDelta(t, 2.0, m.Intensity(0), 1e-9)
}
