package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSizer() *Sizer {
	return NewSizer(SizerConfig{
		RiskFraction:       decimal.NewFromFloat(0.01), // 1% of balance
		ProportionFraction: decimal.NewFromFloat(0.10), // 10% of original
		MaxSize:            decimal.NewFromInt(500),
		MinSize:            decimal.NewFromInt(1),
		Digits:             2,
	})
}

func TestSizeIsMinimumOfThreeBounds(t *testing.T) {
	s := testSizer()

	// balance 10000 → risk bound 100; original 50 → proportional bound 5; max 500
	size, ok := s.Calculate(decimal.NewFromInt(10000), decimal.NewFromInt(50))
	require.True(t, ok)
	assert.Equal(t, "5", size.String())
}

func TestRiskBoundDominatesSmallBalance(t *testing.T) {
	s := testSizer()

	// balance 200 → risk bound 2; proportional bound 100
	size, ok := s.Calculate(decimal.NewFromInt(200), decimal.NewFromInt(1000))
	require.True(t, ok)
	assert.Equal(t, "2", size.String())
}

func TestAbsoluteMaxDominates(t *testing.T) {
	s := testSizer()

	size, ok := s.Calculate(decimal.NewFromInt(1000000), decimal.NewFromInt(100000))
	require.True(t, ok)
	assert.Equal(t, "500", size.String())
}

func TestRejectBelowMinimum(t *testing.T) {
	s := testSizer()

	// proportional bound 0.4, below min 1: reject, never silently clamp up
	_, ok := s.Calculate(decimal.NewFromInt(10000), decimal.NewFromInt(4))
	assert.False(t, ok)
}

func TestRoundHalfUp(t *testing.T) {
	s := testSizer()

	// proportional bound = 23.455 → rounds to 23.46 at 2 digits
	size, ok := s.Calculate(decimal.NewFromInt(1000000), decimal.NewFromFloat(234.55))
	require.True(t, ok)
	assert.Equal(t, "23.46", size.StringFixed(2))
}
