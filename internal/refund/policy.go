// Package refund maps the time left before departure to a refund tier.
package refund

import (
	"time"

	"github.com/iliyamo/bus-seat-booking/internal/model"
)

// Tier thresholds.
const (
	FullWindow    = 24 * time.Hour
	PartialWindow = 6 * time.Hour
)

// PercentFor returns 80 when departure is more than 24h after now, 50 from
// 6h to 24h inclusive, and 0 under 6h or after departure.  Callers pass
// the wall clock at the moment of the cancellation request.
func PercentFor(departure, now time.Time) int {
	left := departure.Sub(now)
	switch {
	case left > FullWindow:
		return 80
	case left >= PartialWindow:
		return 50
	default:
		return 0
	}
}

// Amount applies percent to total, rounded half-up to the cent.  The
// result never exceeds total.
func Amount(total model.Money, percent int) model.Money {
	if total <= 0 || percent <= 0 {
		return 0
	}
	return model.MinMoney(total, total.Percent(int64(percent)*100))
}
