// internal/domain/checkout/pricing.go
package checkout

import (
	"fmt"
	"strings"

	"github.com/your-org/commerce-core/internal/pkg/apperrors"
)

// ShippingMethod is a selectable delivery option. Prices are minor units.
type ShippingMethod struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         int64  `json:"price"`
	EstimatedDays string `json:"estimated_days"`
}

// Coupon is a discount rule. Flat amounts and percentages are exclusive.
type Coupon struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Percent     int64  `json:"percent,omitempty"`     // Percentage of subtotal
	FlatAmount  int64  `json:"flat_amount,omitempty"` // Minor units
	MinSubtotal int64  `json:"min_subtotal,omitempty"`
}

// Pricing is the order's financial breakdown, frozen into the order row.
type Pricing struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// Calculator computes order pricing. Defaults match Indian GST and the
// store's shipping tiers; tests construct their own.
type Calculator struct {
	TaxRateBps            int64 // Tax in basis points, 1800 = 18% GST
	FreeShippingThreshold int64
	Methods               []ShippingMethod
	Coupons               map[string]Coupon
}

// NewCalculator returns the production pricing calculator.
func NewCalculator() *Calculator {
	return &Calculator{
		TaxRateBps:            1800,
		FreeShippingThreshold: 299900,
		Methods: []ShippingMethod{
			{
				ID:            "standard",
				Name:          "Standard Shipping",
				Description:   "Delivery in 5-7 business days",
				Price:         5000,
				EstimatedDays: "5-7",
			},
			{
				ID:            "express",
				Name:          "Express Shipping",
				Description:   "Delivery in 1-2 business days",
				Price:         15000,
				EstimatedDays: "1-2",
			},
		},
		Coupons: map[string]Coupon{
			"SAVE10": {
				Code:        "SAVE10",
				Description: "10% off your order",
				Percent:     10,
			},
			"FLAT500": {
				Code:        "FLAT500",
				Description: "Flat ₹500 off orders above ₹2500",
				FlatAmount:  50000,
				MinSubtotal: 250000,
			},
			"WELCOME20": {
				Code:        "WELCOME20",
				Description: "20% off your first order",
				Percent:     20,
			},
		},
	}
}

// ShippingMethodByID resolves a shipping method.
func (c *Calculator) ShippingMethodByID(id string) (*ShippingMethod, error) {
	for i := range c.Methods {
		if c.Methods[i].ID == id {
			return &c.Methods[i], nil
		}
	}
	return nil, apperrors.Validation(fmt.Sprintf("unknown shipping method: %s", id))
}

// CouponByCode resolves and validates a coupon against the subtotal.
func (c *Calculator) CouponByCode(code string, subtotal int64) (*Coupon, error) {
	coupon, ok := c.Coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("invalid coupon code: %s", code))
	}
	if subtotal < coupon.MinSubtotal {
		return nil, apperrors.Validation(
			fmt.Sprintf("coupon %s requires a minimum order of %d", coupon.Code, coupon.MinSubtotal))
	}
	return &coupon, nil
}

// Compute builds the pricing breakdown. Discount applies to the subtotal,
// shipping is tiered with a free threshold, and tax applies to the
// discounted subtotal. Discount never exceeds the subtotal.
func (c *Calculator) Compute(subtotal int64, coupon *Coupon, method *ShippingMethod) Pricing {
	discount := int64(0)
	if coupon != nil {
		if coupon.FlatAmount > 0 {
			discount = coupon.FlatAmount
		} else if coupon.Percent > 0 {
			discount = subtotal * coupon.Percent / 100
		}
		if discount > subtotal {
			discount = subtotal
		}
	}

	shipping := int64(0)
	if method != nil {
		shipping = method.Price
		if c.FreeShippingThreshold > 0 && subtotal-discount >= c.FreeShippingThreshold {
			shipping = 0
		}
	}

	taxable := subtotal - discount
	tax := taxable * c.TaxRateBps / 10000

	return Pricing{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      tax,
		Total:    taxable + shipping + tax,
	}
}
