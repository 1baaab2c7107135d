// Package indicators implements the O(1) stateful microstructure
// calculators: Order Flow Imbalance, VPIN, and Hawkes intensity. Each
// calculator is single-threaded, owned by exactly one consumer instance,
// and exposes Reset() to clear state to its configured initial values.
package indicators

// BookLevel is a single top-of-book quote (price, size) used as OFI input.
type BookLevel struct {
	Price float64
	Size  float64
}

// OFI computes Order Flow Imbalance per the event-contribution definition
// in spec.md §4.7, grounded on
// original_source/shijim_indicators/src/metrics/ofi.rs
// (RustOfiCalculator::update_from_levels). Positive OFI means buy pressure.
type OFI struct {
	havePrev bool
	prevBid  BookLevel
	prevAsk  BookLevel
}

// NewOFI returns a freshly reset OFI calculator.
func NewOFI() *OFI {
	return &OFI{}
}

// Reset clears the calculator back to its initial (no prior quote) state.
func (o *OFI) Reset() {
	o.havePrev = false
	o.prevBid = BookLevel{}
	o.prevAsk = BookLevel{}
}

// Update computes the OFI contribution of the transition from the
// previously stored BBO to (bid, ask), then stores (bid, ask) as the new
// previous state. The first call after construction or Reset has no prior
// state to compare against, so it seeds state and returns (0, false).
func (o *OFI) Update(bid, ask BookLevel) (value float64, ok bool) {
	if !o.havePrev {
		o.prevBid = bid
		o.prevAsk = ask
		o.havePrev = true
		return 0, false
	}

	bidContrib := bidContribution(bid, o.prevBid)
	askContrib := askContribution(ask, o.prevAsk)

	o.prevBid = bid
	o.prevAsk = ask

	return bidContrib - askContrib, true
}

func bidContribution(cur, prev BookLevel) float64 {
	switch {
	case cur.Price > prev.Price:
		return cur.Size
	case cur.Price < prev.Price:
		return -prev.Size
	default:
		return cur.Size - prev.Size
	}
}

func askContribution(cur, prev BookLevel) float64 {
	switch {
	case cur.Price < prev.Price:
		return cur.Size
	case cur.Price > prev.Price:
		return -prev.Size
	default:
		return cur.Size - prev.Size
	}
}
