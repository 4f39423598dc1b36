// Package money provides fixed-point integer-cent arithmetic for the payout
// ledger. Percentages are carried as basis points (1/100th of a percent) so a
// two-decimal percentage is always exact, and share computation never touches
// floating point.
package money

import (
	"fmt"
	"math"
	"sort"
)

// Amount is a monetary value in integer cents.
type Amount int64

// BasisPoints is a percentage scaled by 100: 10000 = 100.00%, 3333 = 33.33%.
type BasisPoints int64

const (
	// FullShare is 100% expressed in basis points.
	FullShare BasisPoints = 10000

	// MaxAmount bounds amounts so that amount*basis-points arithmetic
	// cannot overflow int64.
	MaxAmount Amount = 900_000_000_000_000
)

// FromCents wraps raw cents, rejecting negative or out-of-range values.
func FromCents(cents int64) (Amount, error) {
	a := Amount(cents)
	if a < 0 {
		return 0, fmt.Errorf("amount cannot be negative: %d", cents)
	}
	if a > MaxAmount {
		return 0, fmt.Errorf("amount %d exceeds maximum %d", cents, MaxAmount)
	}
	return a, nil
}

// Cents returns the raw cent value.
func (a Amount) Cents() int64 { return int64(a) }

// String formats the amount as a decimal dollar string, e.g. "1000.00".
func (a Amount) String() string {
	return fmt.Sprintf("%d.%02d", int64(a)/100, int64(a)%100)
}

// BasisPointsFromPercent converts a percentage with up to two decimal places
// (e.g. 33.33) into basis points. More than two decimals is rejected rather
// than silently rounded.
func BasisPointsFromPercent(pct float64) (BasisPoints, error) {
	if pct < 0 {
		return 0, fmt.Errorf("percentage cannot be negative: %v", pct)
	}
	scaled := pct * 100
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, fmt.Errorf("percentage %v has more than two decimal places", pct)
	}
	return BasisPoints(rounded), nil
}

// Percent returns the basis points as a float percentage (3333 -> 33.33).
func (bp BasisPoints) Percent() float64 { return float64(bp) / 100 }

// String formats basis points as a percentage, e.g. "33.33%".
func (bp BasisPoints) String() string {
	return fmt.Sprintf("%d.%02d%%", int64(bp)/100, int64(bp)%100)
}

// Share returns the truncated share of an amount at the given basis points,
// plus the fractional remainder in 1/10000ths of a cent. Truncation is toward
// zero so the sum of shares never exceeds the amount.
func (a Amount) Share(bp BasisPoints) (share Amount, frac int64) {
	raw := int64(a) * int64(bp)
	return Amount(raw / int64(FullShare)), raw % int64(FullShare)
}

// Portion is one party's claim on an amount being allocated.
type Portion struct {
	Key    string // tie-break identity, smallest key wins the remainder
	Points BasisPoints
}

// Allocate splits an amount across portions by truncating each share toward
// zero. When the portions sum to exactly 100%, the leftover cents are assigned
// to the portion with the largest fractional remainder, ties broken by the
// smallest key, so repeated allocations of the same input are identical and
// the shares always sum back to the amount. When the portions sum to less
// than 100% the leftover is intentionally unassigned.
func Allocate(total Amount, portions []Portion) ([]Amount, error) {
	if total < 0 || total > MaxAmount {
		return nil, fmt.Errorf("amount %d out of range", total)
	}

	var sumPoints BasisPoints
	shares := make([]Amount, len(portions))
	fracs := make([]int64, len(portions))
	var allocated Amount
	for i, p := range portions {
		if p.Points < 0 {
			return nil, fmt.Errorf("portion %q has negative percentage", p.Key)
		}
		sumPoints += p.Points
		shares[i], fracs[i] = total.Share(p.Points)
		allocated += shares[i]
	}
	if sumPoints > FullShare {
		return nil, fmt.Errorf("portions sum to %s, over 100%%", sumPoints)
	}

	if sumPoints == FullShare && allocated < total {
		// Deterministic remainder assignment: largest fractional
		// remainder first, then smallest key.
		order := make([]int, len(portions))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(x, y int) bool {
			ix, iy := order[x], order[y]
			if fracs[ix] != fracs[iy] {
				return fracs[ix] > fracs[iy]
			}
			return portions[ix].Key < portions[iy].Key
		})
		remainder := total - allocated
		for _, i := range order {
			if remainder == 0 {
				break
			}
			shares[i]++
			remainder--
		}
	}

	return shares, nil
}
