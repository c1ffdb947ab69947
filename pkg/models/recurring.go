package models

import (
	"fmt"
	"time"
)

// Frequency is how often a recurring date trigger repeats.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// RecurringPattern describes a recurrence rule for date triggers.
// Weekday applies to weekly patterns, DayOfMonth to monthly and yearly
// ones. Month applies to yearly patterns only.
type RecurringPattern struct {
	Frequency  Frequency    `json:"frequency"    validate:"required"`
	Weekday    time.Weekday `json:"weekday,omitempty"`
	DayOfMonth int          `json:"day_of_month,omitempty"`
	Month      time.Month   `json:"month,omitempty"`
}

// Validate rejects patterns the evaluator cannot interpret.
func (p RecurringPattern) Validate() error {
	switch p.Frequency {
	case FrequencyDaily:
		return nil
	case FrequencyWeekly:
		if p.Weekday < time.Sunday || p.Weekday > time.Saturday {
			return fmt.Errorf("recurring pattern: invalid weekday %d", p.Weekday)
		}

		return nil
	case FrequencyMonthly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("recurring pattern: invalid day of month %d", p.DayOfMonth)
		}

		return nil
	case FrequencyYearly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("recurring pattern: invalid day of month %d", p.DayOfMonth)
		}

		if p.Month != 0 && (p.Month < time.January || p.Month > time.December) {
			return fmt.Errorf("recurring pattern: invalid month %d", p.Month)
		}

		return nil
	default:
		return fmt.Errorf("recurring pattern: unknown frequency %q", p.Frequency)
	}
}

// Matches is pure and deterministic given (pattern, now): daily always
// matches, weekly matches iff now's weekday equals the configured one,
// monthly and yearly match on day-of-month (yearly additionally on the
// configured month when set).
func (p RecurringPattern) Matches(now time.Time) bool {
	switch p.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return now.Weekday() == p.Weekday
	case FrequencyMonthly:
		return now.Day() == p.DayOfMonth
	case FrequencyYearly:
		if p.Month != 0 && now.Month() != p.Month {
			return false
		}

		return now.Day() == p.DayOfMonth
	default:
		return false
	}
}
