package domain

import (
	"fmt"
	"time"
)

// DayLayout is the calendar-day key format used by the metrics table.
const DayLayout = "2006-01-02"

// DailyMetrics is one row of the daily_metrics table, keyed by UTC day.
// Amounts are whole tokens (raw value / 10^decimals).
type DailyMetrics struct {
	Day                    string  // YYYY-MM-DD, UTC
	Volume                 float64 // sum of all categorized transfer volume
	CircToUser             float64 // issuer -> user
	UserToUser             float64 // user -> user
	UserToCirc             float64 // user -> issuer
	CircToTres             float64 // issuer -> treasury
	UserToTres             float64 // user -> treasury
	HolderCount            int64   // non-privileged addresses with positive balance at end of day
	UniqueSenders          int64   // distinct non-privileged senders
	ActiveWallets          int64   // distinct non-privileged senders or receivers
	Minted                 float64
	Burned                 float64
	CirculationContraction float64
	TotalSupply            float64 // snapshot at run head
	CirculatingBalance     float64 // issuer balance snapshot at run head
	TreasuryBalance        float64 // treasury balance snapshot at run head
}

// DayOf returns the UTC calendar day of t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD key as midnight UTC.
func ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return t, nil
}

// AddDays shifts a day key by n days.
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DayLayout), nil
}

// DaysBetween returns the day keys strictly between from and to, ascending.
func DaysBetween(from, to string) ([]string, error) {
	start, err := ParseDay(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDay(to)
	if err != nil {
		return nil, err
	}

	var days []string
	for d := start.AddDate(0, 0, 1); d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days, nil
}
