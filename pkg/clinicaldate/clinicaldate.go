// Package clinicaldate turns stored birth and discharge strings into display
// values and derived clinical quantities: formatted dates, age descriptions,
// days of life and weight-change percentages.
//
// Every function is pure and takes "now" explicitly. Malformed input never
// produces an error at the display boundary; it yields one of the sentinel
// strings below so that a single bad field degrades one value, not a view.
package clinicaldate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel display values.
const (
	InvalidDate      = "invalid date"
	DateError        = "date error"
	Placeholder      = "—"
	CalculationError = "calculation error"
)

// Stored and displayed layouts.
const (
	StorageLayout = "2006-01-02"
	TimeLayout    = "15:04"
	DisplayLayout = "02/01/2006"
)

var parseLayouts = []string{
	StorageLayout,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	DisplayLayout,
}

var (
	ErrMalformedDate = errors.New("malformed date")
	ErrMalformedTime = errors.New("malformed time")
	ErrBeforeBirth   = errors.New("reference time precedes birth")
)

var hundred = decimal.NewFromInt(100)

// ParseDate parses a stored date string in loc. A nil loc means UTC.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMalformedDate
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
}

// ParseInstant combines a stored date and an HH:MM time into one instant in
// loc. An empty time means midnight.
func ParseInstant(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return d, nil
	}
	hm, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTime, clock)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hm.Hour(), hm.Minute(), 0, 0, d.Location()), nil
}

// FormatDate renders a stored date as DD/MM/YYYY, or InvalidDate.
func FormatDate(s string) string {
	t, err := ParseDate(s, nil)
	if err != nil {
		return InvalidDate
	}
	return t.Format(DisplayLayout)
}

// FormatOptionalDate is FormatDate with Placeholder for a blank value.
func FormatOptionalDate(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return FormatDate(s)
}

// CalculateAge describes the age of someone born on birthDate as of now.
//
// Day counts are taken between calendar dates; the birth time is ignored.
// Under 30 days the age is reported in days. Under one completed year it is
// reported in calendar months plus (days mod 30). Otherwise in completed years
// plus (days mod 365). The modulo remainders are the accepted neonatal
// phrasing and are kept as is.
//
// The month count adds twelve whenever now is in a later calendar year than
// the birth, not only when now's month precedes the birth month. The two rules
// differ only in the birth month one year later, before the birthday: the
// month-order rule would give -1 months there, and this one reports 11.
func CalculateAge(birthDate string, now time.Time) string {
	birth, err := ParseDate(birthDate, now.Location())
	if err != nil {
		return InvalidDate
	}

	days := calendarDays(birth, now)
	if days < 0 {
		return DateError
	}
	if days < 30 {
		return plural(days, "day")
	}

	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}

	if years == 0 {
		months := int(now.Month()) - int(birth.Month())
		if now.Day() < birth.Day() {
			months--
		}
		// Anniversary month falls in the next calendar year.
		if now.Year() > birth.Year() {
			months += 12
		}
		if months < 0 {
			return DateError
		}
		return plural(months, "month") + " and " + plural(days%30, "day")
	}

	return plural(years, "year") + " and " + plural(days%365, "day")
}

// DaysOfLife returns the whole 24-hour periods elapsed between the birth
// instant and now.
func DaysOfLife(birthDate, birthTime string, now time.Time) (int, error) {
	birth, err := ParseInstant(birthDate, birthTime, now.Location())
	if err != nil {
		return 0, err
	}
	elapsed := now.Sub(birth)
	if elapsed < 0 {
		return 0, ErrBeforeBirth
	}
	return int(elapsed / (24 * time.Hour)), nil
}

// FormatDaysOfLife is DaysOfLife rendered for display.
func FormatDaysOfLife(birthDate, birthTime string, now time.Time) string {
	n, err := DaysOfLife(birthDate, birthTime, now)
	switch {
	case errors.Is(err, ErrMalformedDate), errors.Is(err, ErrMalformedTime):
		return InvalidDate
	case err != nil:
		return DateError
	}
	return strconv.Itoa(n)
}

// WeightChangePercentage reports (discharge / birth * 100) - 100 with two
// decimals and a trailing "%". Weights are accepted with a decimal comma.
func WeightChangePercentage(birthWeight, dischargeWeight string) string {
	birthWeight = strings.TrimSpace(birthWeight)
	dischargeWeight = strings.TrimSpace(dischargeWeight)
	if birthWeight == "" || dischargeWeight == "" {
		return Placeholder
	}

	b, err := parseWeight(birthWeight)
	if err != nil || b.IsZero() {
		return CalculationError
	}
	d, err := parseWeight(dischargeWeight)
	if err != nil {
		return CalculationError
	}

	return d.Div(b).Mul(hundred).Sub(hundred).StringFixed(2) + "%"
}

func parseWeight(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}

// calendarDays counts midnights crossed between the calendar dates of a and b.
func calendarDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
