// Package fare turns a per-seat base fare, a seat count and an optional
// coupon into a fare breakdown.  Everything here is pure: the same inputs
// always give the same breakdown, which both the purchase path and the
// coupon preview rely on.
package fare

import (
	"fmt"
	"strings"

	"github.com/iliyamo/bus-seat-booking/internal/model"
)

// Policy holds the business constants used by the calculator.  Percent
// values are in basis points (500 = 5%).
type Policy struct {
	GSTBasisPoints    int64
	FeeBasisPoints    int64
	FeeMin            model.Money
	FeeMax            model.Money
	CouponCode        string
	CouponBasisPoints int64
	CouponMinFare     model.Money
	CouponMaxDiscount model.Money
}

// DefaultPolicy is 5% GST, a 2% convenience fee clamped to [10, 40] and a
// 10% coupon capped at 150 for fares of at least 500.
func DefaultPolicy() Policy {
	return Policy{
		GSTBasisPoints:    500,
		FeeBasisPoints:    200,
		FeeMin:            1000,
		FeeMax:            4000,
		CouponCode:        "FIRST10",
		CouponBasisPoints: 1000,
		CouponMinFare:     50000,
		CouponMaxDiscount: 15000,
	}
}

// Calculator computes fare breakdowns for a fixed Policy.
type Calculator struct {
	policy Policy
}

// NewCalculator returns a Calculator bound to p.
func NewCalculator(p Policy) *Calculator { return &Calculator{policy: p} }

// Policy returns the constants the calculator was built with.
func (c *Calculator) Policy() Policy { return c.policy }

// Compute returns the breakdown for seatCount seats at baseFare each.
// couponCode may be empty.  WalletUsed is always zero here; the booking
// ledger applies wallet money afterwards.
func (c *Calculator) Compute(baseFare model.Money, seatCount int, couponCode string) (model.FareBreakdown, error) {
	if baseFare <= 0 {
		return model.FareBreakdown{}, model.ValidationError{Field: "base_fare", Msg: "must be greater than zero"}
	}
	if seatCount <= 0 {
		return model.FareBreakdown{}, model.ValidationError{Field: "seats", Msg: "must be at least 1"}
	}
	if seatCount > model.MaxSeatsPerBooking {
		return model.FareBreakdown{}, model.ValidationError{Field: "seats", Msg: fmt.Sprintf("at most %d seats", model.MaxSeatsPerBooking)}
	}
	if baseFare > model.MaxAmount/model.Money(seatCount) {
		return model.FareBreakdown{}, model.ValidationError{Field: "base_fare", Msg: "fare is too large"}
	}
	p := c.policy

	fare := baseFare * model.Money(seatCount)
	gst := fare.Percent(p.GSTBasisPoints)
	fee := clamp(fare.Percent(p.FeeBasisPoints), p.FeeMin, p.FeeMax)

	var discount model.Money
	var applied *string
	if c.couponApplies(couponCode, fare) {
		discount = model.MinMoney(p.CouponMaxDiscount, fare.Percent(p.CouponBasisPoints))
		code := p.CouponCode
		applied = &code
	}

	total := model.MaxMoney(0, fare+gst+fee-discount)
	return model.FareBreakdown{
		Fare:           fare,
		GST:            gst,
		ConvenienceFee: fee,
		Discount:       discount,
		CouponCode:     applied,
		Total:          total,
	}, nil
}

// couponApplies checks the code case-insensitively against the aggregate
// fare, after seat-count multiplication.
func (c *Calculator) couponApplies(code string, fare model.Money) bool {
	code = strings.TrimSpace(code)
	if code == "" || c.policy.CouponCode == "" {
		return false
	}
	return strings.EqualFold(code, c.policy.CouponCode) && fare >= c.policy.CouponMinFare
}

func clamp(v, lo, hi model.Money) model.Money {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
