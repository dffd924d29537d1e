package commission

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFee_ExactRate(t *testing.T) {
	result, err := Fee(5000, 12.5)

	assert.NoError(t, err)
	assert.Equal(t, int64(625), result.Fee)
	assert.False(t, result.Clamped)
}

func TestFee_RoundsUp(t *testing.T) {
	result, err := Fee(5001, 12.5)

	assert.NoError(t, err)
	assert.Equal(t, int64(626), result.Fee)
	assert.False(t, result.Clamped)
}

func TestFee_Deterministic(t *testing.T) {
	first, err := Fee(123457, 7.3)
	assert.NoError(t, err)

	for i := 0; i < 100; i++ {
		again, err := Fee(123457, 7.3)
		assert.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFee_ClampsToMax(t *testing.T) {
	result, err := Fee(10000, 60)

	assert.NoError(t, err)
	assert.Equal(t, int64(5000), result.Fee)
	assert.Equal(t, int64(6000), result.Raw)
	assert.True(t, result.Clamped)
}

func TestFee_ClampsToMin(t *testing.T) {
	result, err := Fee(10000, 0)

	assert.NoError(t, err)
	assert.Equal(t, int64(50), result.Fee)
	assert.True(t, result.Clamped)
}

func TestFee_MinBoundRoundsUp(t *testing.T) {
	// 0.5% of 10001 is 50.005, the minimum fee rounds up to 51.
	result, err := Fee(10001, 0)

	assert.NoError(t, err)
	assert.Equal(t, int64(51), result.Fee)
}

func TestFee_ZeroGross(t *testing.T) {
	result, err := Fee(0, 12.5)

	assert.NoError(t, err)
	assert.Equal(t, int64(0), result.Fee)
}

func TestFee_NegativeGross(t *testing.T) {
	_, err := Fee(-1, 10)

	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFee_NonFiniteRate(t *testing.T) {
	_, err := Fee(1000, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Fee(1000, math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefundFee_FullRefund(t *testing.T) {
	fee, err := RefundFee(6000, 50000, 50000)

	assert.NoError(t, err)
	assert.Equal(t, int64(6000), fee)
}

func TestRefundFee_PartialRefund(t *testing.T) {
	fee, err := RefundFee(6000, 25000, 50000)

	assert.NoError(t, err)
	assert.Equal(t, int64(3000), fee)
}

func TestRefundFee_RoundsDown(t *testing.T) {
	// 1000 * 3333 / 10000 = 333.3, never more than collected.
	fee, err := RefundFee(1000, 3333, 10000)

	assert.NoError(t, err)
	assert.Equal(t, int64(333), fee)
}

func TestRefundFee_RefundExceedsGross(t *testing.T) {
	_, err := RefundFee(6000, 50001, 50000)

	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefundFee_InvalidInput(t *testing.T) {
	_, err := RefundFee(-1, 100, 1000)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = RefundFee(100, -1, 1000)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = RefundFee(100, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
