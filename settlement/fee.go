// Package settlement holds the settlement primitives: platform fee math,
// the idempotence mark recorded for every executed payout, and the batch
// request and result shapes.
package settlement

import "github.com/xraph/remit/types"

const (
	// BasisPoints is the fee denominator: 10000 bps = 100%.
	BasisPoints = 10000

	// MaxFeeBps is the highest accepted platform fee rate.
	MaxFeeBps uint32 = BasisPoints
)

// ValidFeeBps reports whether bps lies in [0, MaxFeeBps].
func ValidFeeBps(bps uint32) bool {
	return bps <= MaxFeeBps
}

// Fee computes floor(amount * bps / 10000) for a positive amount.
// It returns types.ErrOverflow when the intermediate product leaves the
// 128-bit range.
func Fee(amount types.Amount, bps uint32) (types.Amount, error) {
	product, err := amount.CheckedMul(types.NewAmount(int64(bps)))
	if err != nil {
		return types.Amount{}, err
	}
	return product.Quo(BasisPoints), nil
}

// Split returns the fee and the agent payout for amount at bps.
func Split(amount types.Amount, bps uint32) (fee, payout types.Amount, err error) {
	if fee, err = Fee(amount, bps); err != nil {
		return types.Amount{}, types.Amount{}, err
	}
	if payout, err = amount.CheckedSub(fee); err != nil {
		return types.Amount{}, types.Amount{}, err
	}
	return fee, payout, nil
}
