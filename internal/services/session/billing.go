package session

import (
	"time"

	"github.com/shopspring/decimal"
)

// billedMinutes rounds elapsed time up to whole minutes, the billing
// unit promised for chat and call consultations. 3m10s bills as 4.
func billedMinutes(elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	secs := int64(elapsed / time.Second)
	if elapsed%time.Second > 0 {
		secs++
	}
	return (secs + 59) / 60
}

// minutesFromSeconds is billedMinutes for a provider-reported duration.
func minutesFromSeconds(seconds int) int64 {
	if seconds <= 0 {
		return 0
	}
	return (int64(seconds) + 59) / 60
}

// chargeFor prices whole minutes at the session's frozen rate.
func chargeFor(ratePerMinute decimal.Decimal, minutes int64) decimal.Decimal {
	return ratePerMinute.Mul(decimal.NewFromInt(minutes))
}
