package indicators

import "math"

// bucketEps absorbs floating-point drift when deciding whether a volume
// bucket is full, matching original_source/shijim_indicators's BUCKET_EPS.
const bucketEps = 1e-9

// VPIN computes the volume-synchronized probability of informed trading,
// grounded on
// original_source/shijim_indicators/src/metrics/vpin.rs
// (RustVpinCalculator). Trades are classified buy/sell either by an
// explicit side (UpdateSignedVolume) or, when unavailable, by bulk volume
// classification against a recent price move (UpdateTrade + BVC).
type VPIN struct {
	bucketVolume float64
	windowN      int

	filledVolume float64
	buyVolume    float64
	sellVolume   float64

	imbalances   []float64 // fixed-size ring of the last windowN bucket imbalances
	ringHead     int
	ringLen      int
	imbalanceSum float64

	bvc *bvcClassifier
}

// NewVPIN constructs a VPIN calculator with the given bucket volume and
// rolling window length (number of buckets).
func NewVPIN(bucketVolume float64, windowN int) *VPIN {
	return &VPIN{
		bucketVolume: bucketVolume,
		windowN:      windowN,
		imbalances:   make([]float64, windowN),
		bvc:          newBVCClassifier(),
	}
}

// Reset clears all bucket and window state back to empty.
func (v *VPIN) Reset() {
	v.filledVolume = 0
	v.buyVolume = 0
	v.sellVolume = 0
	v.ringHead = 0
	v.ringLen = 0
	v.imbalanceSum = 0
	for i := range v.imbalances {
		v.imbalances[i] = 0
	}
	v.bvc.reset()
}

// BucketsReady returns how many completed buckets are currently held in
// the rolling window.
func (v *VPIN) BucketsReady() int { return v.ringLen }

// BucketVolume returns the configured bucket volume V.
func (v *VPIN) BucketVolume() float64 { return v.bucketVolume }

// UpdateSignedVolume consumes a trade whose side is already known: positive
// for buy-initiated, negative for sell-initiated. Returns the current VPIN
// value once the rolling window has windowN completed buckets, or
// (0, false) before that.
func (v *VPIN) UpdateSignedVolume(signedVolume float64) (float64, bool) {
	v.consumeTrade(signedVolume)
	return v.current()
}

// UpdateTrade consumes a trade with an unclassified side, using bulk
// volume classification against the running price level to split it
// probabilistically into buy/sell volume before feeding the bucket.
func (v *VPIN) UpdateTrade(price, volume float64) (float64, bool) {
	buyFraction := v.bvc.classify(price)
	v.consumeTrade(volume * (2*buyFraction - 1))
	return v.current()
}

func (v *VPIN) consumeTrade(signedVolume float64) {
	if signedVolume == 0 || !isFinite(signedVolume) {
		return
	}

	buy := signedVolume > 0
	remaining := math.Abs(signedVolume)

	for remaining > 0 {
		if v.bucketIsFull() {
			v.finalizeBucket()
			continue
		}

		space := math.Max(v.bucketVolume-v.filledVolume, 0)
		take := math.Min(remaining, space)
		if take <= 0 {
			v.finalizeBucket()
			continue
		}

		if buy {
			v.buyVolume += take
		} else {
			v.sellVolume += take
		}
		v.filledVolume += take
		remaining -= take

		if v.bucketIsFull() {
			v.finalizeBucket()
		}
	}
}

func (v *VPIN) bucketIsFull() bool {
	return v.bucketVolume-v.filledVolume <= bucketEps
}

func (v *VPIN) finalizeBucket() {
	if v.filledVolume <= 0 {
		return
	}
	imbalance := math.Abs(v.buyVolume - v.sellVolume)

	if v.ringLen < v.windowN {
		v.imbalances[(v.ringHead+v.ringLen)%v.windowN] = imbalance
		v.ringLen++
		v.imbalanceSum += imbalance
	} else {
		evicted := v.imbalances[v.ringHead]
		v.imbalanceSum -= evicted
		v.imbalances[v.ringHead] = imbalance
		v.imbalanceSum += imbalance
		v.ringHead = (v.ringHead + 1) % v.windowN
	}

	v.buyVolume = 0
	v.sellVolume = 0
	v.filledVolume = 0
}

func (v *VPIN) current() (float64, bool) {
	if v.ringLen < v.windowN {
		return 0, false
	}
	denom := v.bucketVolume * float64(v.windowN)
	return v.imbalanceSum / denom, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// bvcClassifier implements bulk volume classification: a trade's buy
// fraction is Φ(Δp/σ), the standard normal CDF of the standardized price
// change over a short rolling window. This is the SPEC_FULL.md supplement
// — the distilled spec names "BVC or explicit side" without fixing the
// formula; this follows the standard BVC definition used across the
// original_source feature engineering.
type bvcClassifier struct {
	lastPrice  float64
	havePrice  bool
	deltas     []float64
	deltaIdx   int
	deltaCount int
	windowLen  int
}

const bvcDefaultWindow = 32

func newBVCClassifier() *bvcClassifier {
	return &bvcClassifier{deltas: make([]float64, bvcDefaultWindow), windowLen: bvcDefaultWindow}
}

func (b *bvcClassifier) reset() {
	b.havePrice = false
	b.lastPrice = 0
	b.deltaIdx = 0
	b.deltaCount = 0
	for i := range b.deltas {
		b.deltas[i] = 0
	}
}

func (b *bvcClassifier) classify(price float64) float64 {
	if !b.havePrice {
		b.havePrice = true
		b.lastPrice = price
		return 0.5
	}
	delta := price - b.lastPrice
	b.lastPrice = price

	b.deltas[b.deltaIdx] = delta
	b.deltaIdx = (b.deltaIdx + 1) % b.windowLen
	if b.deltaCount < b.windowLen {
		b.deltaCount++
	}

	sigma := stddev(b.deltas[:b.deltaCount])
	if sigma <= 0 {
		if delta > 0 {
			return 1
		} else if delta < 0 {
			return 0
		}
		return 0.5
	}
	z := delta / sigma
	return standardNormalCDF(z)
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

// standardNormalCDF returns Φ(z) via the error function identity
// Φ(z) = (1 + erf(z/√2)) / 2.
func standardNormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}
