package expiration

import (
	"time"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

// DefaultWarningDays is the default width of the expiring-soon window.
const DefaultWarningDays = 5

// Date truncates t to its calendar day, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar date by n days.
func AddDays(date time.Time, n int) time.Time {
	return Date(date).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from from to to.
func DaysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)).Hours() / 24)
}

// WarningThreshold is the last date that still counts as expiring soon.
func WarningThreshold(today time.Time, warningDays int) time.Time {
	if warningDays < 0 {
		warningDays = 0
	}
	return AddDays(today, warningDays)
}

// DaysRemaining returns expiration - today in days; negative once expired.
func DaysRemaining(expiration, today time.Time) int {
	return DaysBetween(today, expiration)
}

// Classify maps an expiration date to a lifecycle status as of today:
// before today is expired, today through today+warningDays is expiring
// soon, anything later is active. It never returns renewed.
func Classify(expiration, today time.Time, warningDays int) domain.TicketStatus {
	exp := Date(expiration)
	day := Date(today)
	switch {
	case exp.Before(day):
		return domain.TicketStatusExpired
	case !exp.After(WarningThreshold(day, warningDays)):
		return domain.TicketStatusExpiringSoon
	default:
		return domain.TicketStatusActive
	}
}
