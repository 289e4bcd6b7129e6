package ar

import (
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// ProRate prices a partial period. When created falls strictly after
// periodStart and no later than periodEnd, the plan price is scaled by
// activeDays/totalDays, where totalDays counts both period ends and
// activeDays is periodEnd - created. All arguments are calendar dates.
func ProRate(price int64, periodStart, periodEnd, created time.Time) (int64, bool) {
	if !created.After(periodStart) || created.After(periodEnd) {
		return price, false
	}
	totalDays := int64(shared.DaysBetween(periodStart, periodEnd)) + 1
	activeDays := int64(shared.DaysBetween(created, periodEnd))
	return roundDiv(price*activeDays, totalDays), true
}

// roundDiv divides rounding half away from zero. d must be positive.
func roundDiv(n, d int64) int64 {
	if n < 0 {
		return -roundDiv(-n, d)
	}
	return (2*n + d) / (2 * d)
}
