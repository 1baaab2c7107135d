package indicators

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVPINNotReadyBeforeWindowFills(t *testing.T) {
	v := NewVPIN(100, 3)
	_, ok := v.UpdateSignedVolume(100)
	require.False(t, ok)
	_, ok = v.UpdateSignedVolume(100)
	require.False(t, ok)
}

func TestVPINAllBuyVolumeSaturates(t *testing.T) {
	v := NewVPIN(100, 2)
	v.UpdateSignedVolume(100)
	val, ok := v.UpdateSignedVolume(100)
	require.True(t, ok)
	// every bucket fully one-sided: imbalance == bucketVolume each, so
	// VPIN == bucketVolume*n / (bucketVolume*n) == 1.
	require.InDelta(t, 1.0, val, 1e-9)
}

func TestVPINBalancedFlowIsZero(t *testing.T) {
	v := NewVPIN(100, 2)
	v.UpdateSignedVolume(50)
	v.UpdateSignedVolume(-50)
	v.UpdateSignedVolume(50)
	val, ok := v.UpdateSignedVolume(-50)
	require.True(t, ok)
	require.InDelta(t, 0.0, val, 1e-9)
}

func TestVPINTradeSpanningBucketBoundary(t *testing.T) {
	v := NewVPIN(100, 2)
	// A single 150-unit buy spans the first bucket (100) and starts the
	// second (50).
	v.UpdateSignedVolume(150)
	require.Equal(t, 1, v.BucketsReady())
	val, ok := v.UpdateSignedVolume(50)
	require.True(t, ok)
	require.InDelta(t, 1.0, val, 1e-9)
}

func TestVPINWindowSlidesAndEvictsOldest(t *testing.T) {
	v := NewVPIN(100, 2)
	_, ok := v.UpdateSignedVolume(100) // bucket0 imbalance=100 (all buy)
	require.False(t, ok)               // window not yet full (1 of 2 buckets)

	val, ok := v.UpdateSignedVolume(-100) // bucket1 imbalance=100 (all sell)
	require.True(t, ok)
	require.InDelta(t, 1.0, val, 1e-9)

	// third bucket, balanced: evicts bucket0 (imbalance 100), keeps
	// bucket1 (100) and bucket2 (0) -> VPIN = 100/(200) = 0.5
	v.UpdateSignedVolume(50)
	val, ok = v.UpdateSignedVolume(-50)
	require.True(t, ok)
	require.InDelta(t, 0.5, val, 1e-9)
}

func TestVPINBVCClassifiesRisingPriceAsBuy(t *testing.T) {
	b := newBVCClassifier()
	require.InDelta(t, 0.5, b.classify(100), 1e-9) // seed
	require.Greater(t, b.classify(101), 0.5)       // rise -> mostly buy

	v := NewVPIN(100, 2)
	v.UpdateTrade(100, 10) // seeds bvc price, buyFraction=0.5, no-op volume
	var lastVal float64
	var lastOK bool
	for i := 0; i < 10; i++ {
		lastVal, lastOK = v.UpdateTrade(100+float64(i), 20)
	}
	if lastOK {
		require.GreaterOrEqual(t, lastVal, 0.0)
		require.LessOrEqual(t, lastVal, 1.0)
	}
}

func TestVPINResetClearsWindow(t *testing.T) {
	v := NewVPIN(100, 2)
	v.UpdateSignedVolume(100)
	v.UpdateSignedVolume(100)
	require.Equal(t, 2, v.BucketsReady())
	v.Reset()
	require.Equal(t, 0, v.BucketsReady())
}

func TestStandardNormalCDFSymmetry(t *testing.T) {
	require.InDelta(t, 0.5, standardNormalCDF(0), 1e-9)
	require.InDelta(t, 1-standardNormalCDF(1.0), standardNormalCDF(-1.0), 1e-9)
}
