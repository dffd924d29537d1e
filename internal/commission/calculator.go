// Package commission holds the pure fee math. Amounts are minor units,
// rates are percentages. No I/O, no state; callers decide how to report
// clamp anomalies.
package commission

import (
	"math"

	"github.com/pkg/errors"
)

// Provider-imposed bounds on the platform fee, as fractions of gross.
const (
	minFeeNumerator = 1   // 0.5% = 1/200
	minFeeDivisor   = 200
	maxFeeDivisor   = 2 // 50% = 1/2
)

var ErrInvalidInput = errors.New("invalid commission input")

// Result is the outcome of a fee calculation. Clamped is set when the
// configured rate fell outside the provider bounds and Fee differs from Raw.
type Result struct {
	Fee     int64
	Raw     int64
	Clamped bool
}

// Fee computes the platform commission for a gross amount at the tenant's
// configured rate. Rounding is always up: the platform absorbs the rounding
// risk, not the tenant. An out-of-bounds rate is clamped, never rejected.
func Fee(gross int64, ratePercent float64) (Result, error) {
	if gross < 0 {
		return Result{}, errors.Wrapf(ErrInvalidInput, "negative gross amount %d", gross)
	}
	if math.IsNaN(ratePercent) || math.IsInf(ratePercent, 0) {
		return Result{}, errors.Wrapf(ErrInvalidInput, "non-finite rate %f", ratePercent)
	}

	raw := int64(math.Ceil(float64(gross) * ratePercent / 100))

	minFee := (gross*minFeeNumerator + minFeeDivisor - 1) / minFeeDivisor
	maxFee := gross / maxFeeDivisor

	fee := raw
	if fee < minFee {
		fee = minFee
	}
	if fee > maxFee {
		fee = maxFee
	}

	return Result{Fee: fee, Raw: raw, Clamped: fee != raw}, nil
}

// RefundFee computes the commission to return for a refund, proportional to
// the refunded share of the original gross. Rounding is down, so a partial
// refund never returns more commission than was collected; a full refund
// returns exactly the original commission.
func RefundFee(originalFee, refundAmount, originalGross int64) (int64, error) {
	if originalFee < 0 || refundAmount < 0 || originalGross <= 0 {
		return 0, errors.Wrapf(ErrInvalidInput,
			"fee %d, refund %d, gross %d", originalFee, refundAmount, originalGross)
	}
	if refundAmount > originalGross {
		return 0, errors.Wrapf(ErrInvalidInput,
			"refund %d exceeds original gross %d", refundAmount, originalGross)
	}

	return originalFee * refundAmount / originalGross, nil
}
