package adapter

import (
	"fmt"

	"github.com/holiman/uint256"

	flasherrors "flashsettle/core/errors"
)

// BasisPoints is the denominator for every fee rate.
const BasisPoints = 10_000

var basisPoints = uint256.NewInt(BasisPoints)

// ValidateRate rejects rates above 100%.
func ValidateRate(bps uint64) error {
	if bps > BasisPoints {
		return fmt.Errorf("%w: %d bps", flasherrors.ErrInvalidFeeRate, bps)
	}
	return nil
}

// CalculateFee returns floor(amount * bps / 10_000). Small amounts may
// legitimately round down to a zero fee.
func CalculateFee(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	if err := ValidateRate(bps); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() || bps == 0 {
		return new(uint256.Int), nil
	}
	// The quotient never exceeds amount, so the 512-bit intermediate product
	// cannot overflow the result.
	fee, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(bps), basisPoints)
	return fee, nil
}

// Sum adds the provided amounts, failing on 256-bit overflow.
func Sum(amounts ...*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, amount := range amounts {
		if amount == nil {
			continue
		}
		var overflow bool
		total, overflow = new(uint256.Int).AddOverflow(total, amount)
		if overflow {
			return nil, flasherrors.ErrAmountOverflow
		}
	}
	return total, nil
}
