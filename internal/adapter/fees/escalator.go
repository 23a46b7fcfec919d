package fees

import "math/big"

// Escalator raises a fee bid across resubmissions of the same transaction.
// A resubmitted bid never goes below the previous one and never above Cap.
type Escalator struct {
	// BumpPercent is applied to the previous bid, 10 means +10%
	BumpPercent uint64
	// Cap bounds escalated bids. A nil Cap means unbounded.
	Cap *big.Int
}

func NewEscalator(bumpPercent uint64, cap *big.Int) Escalator {
	return Escalator{BumpPercent: bumpPercent, Cap: cap}
}

// Escalate returns the bid for the next submission given the previous bid
// (nil on the first submission) and a fresh estimate.
func (e Escalator) Escalate(prev, fresh *big.Int) *big.Int {
	if fresh == nil {
		fresh = new(big.Int)
	}
	if prev == nil {
		return e.capped(new(big.Int).Set(fresh))
	}

	bumped := new(big.Int).Mul(prev, new(big.Int).SetUint64(100+e.BumpPercent))
	bumped.Quo(bumped, big.NewInt(100))

	next := bumped
	if fresh.Cmp(next) > 0 {
		next = new(big.Int).Set(fresh)
	}
	next = e.capped(next)
	if next.Cmp(prev) < 0 {
		return new(big.Int).Set(prev)
	}
	return next
}

func (e Escalator) capped(v *big.Int) *big.Int {
	if e.Cap != nil && v.Cmp(e.Cap) > 0 {
		return new(big.Int).Set(e.Cap)
	}
	return v
}
