// internal/domain/checkout/pricing_test.go
package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

func flatShippingCalculator() *Calculator {
	return &Calculator{
		TaxRateBps:            0,
		FreeShippingThreshold: 0,
		Methods: []ShippingMethod{
			{ID: "flat", Name: "Flat Shipping", Price: 5000},
		},
	}
}

func TestComputeFlatShippingNoTax(t *testing.T) {
	// 2 units at ₹500 plus 1 unit at ₹1500 is a ₹2500 subtotal; flat ₹50
	// shipping and no tax lands on ₹2550.
	calc := flatShippingCalculator()
	method, err := calc.ShippingMethodByID("flat")
	require.NoError(t, err)

	subtotal := int64(2*50000 + 150000)
	pricing := calc.Compute(subtotal, nil, method)

	assert.Equal(t, int64(250000), pricing.Subtotal)
	assert.Equal(t, int64(0), pricing.Discount)
	assert.Equal(t, int64(5000), pricing.Shipping)
	assert.Equal(t, int64(0), pricing.Tax)
	assert.Equal(t, int64(255000), pricing.Total)
}

func TestComputeWithTax(t *testing.T) {
	calc := NewCalculator()
	method, err := calc.ShippingMethodByID("standard")
	require.NoError(t, err)

	pricing := calc.Compute(100000, nil, method)
	assert.Equal(t, int64(18000), pricing.Tax, "18% GST on the subtotal")
	assert.Equal(t, int64(100000+5000+18000), pricing.Total)
}

func TestComputePercentCoupon(t *testing.T) {
	calc := NewCalculator()
	coupon, err := calc.CouponByCode("SAVE10", 100000)
	require.NoError(t, err)

	pricing := calc.Compute(100000, coupon, nil)
	assert.Equal(t, int64(10000), pricing.Discount)
	// Tax applies to the discounted subtotal
	assert.Equal(t, int64(90000*1800/10000), pricing.Tax)
}

func TestComputeFlatCouponRespectsMinimum(t *testing.T) {
	calc := NewCalculator()

	_, err := calc.CouponByCode("FLAT500", 100000)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	coupon, err := calc.CouponByCode("flat500", 300000)
	require.NoError(t, err, "codes are case insensitive")
	pricing := calc.Compute(300000, coupon, nil)
	assert.Equal(t, int64(50000), pricing.Discount)
}

func TestComputeDiscountCappedAtSubtotal(t *testing.T) {
	calc := flatShippingCalculator()
	coupon := &Coupon{Code: "BIG", FlatAmount: 999999}

	pricing := calc.Compute(40000, coupon, nil)
	assert.Equal(t, int64(40000), pricing.Discount)
	assert.Equal(t, int64(0), pricing.Total)
}

func TestComputeFreeShippingThreshold(t *testing.T) {
	calc := NewCalculator()
	method, err := calc.ShippingMethodByID("standard")
	require.NoError(t, err)

	below := calc.Compute(299899, nil, method)
	assert.Equal(t, int64(5000), below.Shipping)

	above := calc.Compute(299900, nil, method)
	assert.Equal(t, int64(0), above.Shipping)
}

func TestUnknownShippingMethodAndCoupon(t *testing.T) {
	calc := NewCalculator()

	_, err := calc.ShippingMethodByID("teleport")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = calc.CouponByCode("NOPE", 100000)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
