package ledger

import (
	"math"
	"math/big"

	"github.com/safar/go-stock-ledger/internal/database"
)

// WeightedAverageCost receives inQty units at inPrice into a stock of
// currentQty units valued at currentAvg each and returns the new quantity
// and average cost:
//
//	newAvg = floor((currentQty*currentAvg + inQty*inPrice) / (currentQty + inQty))
//
// Fractional minor units are truncated. When the resulting quantity is not
// positive the average cost is left unchanged.
func WeightedAverageCost(currentQty, currentAvg, inQty, inPrice int64) (int64, int64, error) {
	currentValue, ok := mulInt64(currentQty, currentAvg)
	if !ok {
		return 0, 0, database.InvalidInputf("stock value overflows")
	}
	purchaseValue, ok := mulInt64(inQty, inPrice)
	if !ok {
		return 0, 0, database.InvalidInputf("purchase value overflows")
	}
	totalValue, ok := addInt64(currentValue, purchaseValue)
	if !ok {
		return 0, 0, database.InvalidInputf("stock value overflows")
	}
	totalQty, ok := addInt64(currentQty, inQty)
	if !ok {
		return 0, 0, database.InvalidInputf("quantity overflows")
	}

	if totalQty <= 0 {
		return totalQty, currentAvg, nil
	}
	return totalQty, floorDiv(totalValue, totalQty), nil
}

// AllocateDiscount splits an order level discount over lines in
// proportion to their totals. Each share is floored, then the remainder is
// handed out one unit at a time in line order to lines that still have
// headroom. Shares never exceed their line total and always sum to
// discount.
func AllocateDiscount(discount int64, totals []int64) ([]int64, error) {
	shares := make([]int64, len(totals))
	if discount == 0 {
		return shares, nil
	}
	if discount < 0 {
		return nil, database.InvalidInputf("discount must not be negative")
	}

	var sum int64
	for _, t := range totals {
		var ok bool
		if sum, ok = addInt64(sum, t); !ok {
			return nil, database.InvalidInputf("order total overflows")
		}
	}
	if discount > sum {
		return nil, database.InvalidInputf("discount %d exceeds order total %d", discount, sum)
	}

	bigDiscount := big.NewInt(discount)
	bigSum := big.NewInt(sum)
	var allocated int64
	for i, t := range totals {
		share := new(big.Int).Mul(bigDiscount, big.NewInt(t))
		share.Quo(share, bigSum)
		shares[i] = share.Int64()
		allocated += shares[i]
	}

	for remainder := discount - allocated; remainder > 0; {
		for i := range shares {
			if remainder == 0 {
				break
			}
			if shares[i] < totals[i] {
				shares[i]++
				remainder--
			}
		}
	}

	return shares, nil
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return c, true
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
