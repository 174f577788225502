package normalizer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Spreadsheet serial dates count days from this epoch (the Lotus/Excel 1900
// system, with its leap-year bug already folded in).
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

var (
	minScore = decimal.Zero
	maxScore = decimal.NewFromInt(10)
)

// ParseScore parses a 10-point score cell. Comma and dot are both accepted as
// the decimal separator, surrounding noise is stripped, and the result is
// rounded to two decimals with round-half-up. Values outside [0, 10] are
// invalid, never clamped.
func ParseScore(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	s = nonNumeric.ReplaceAllString(s, "")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	v = v.Round(2) // Round is half away from zero: half-up for non-negative scores
	if v.LessThan(minScore) || v.GreaterThan(maxScore) {
		return decimal.Zero, false
	}
	return v, true
}

// day-first textual layouts accepted for birth dates; dashes are folded to
// slashes before matching.
var dateLayouts = []string{
	"2/1/2006",
	"02/01/2006",
	"2/1/06",
	"2006/01/02", // ISO after dash folding
	"2/1/2006 15:04:05",
	"2006/01/02 15:04:05",
}

// ParseDate parses a date cell: either a numeric spreadsheet serial date or
// one of a small set of day-first textual formats. Malformed input reports
// false, it never panics or errors.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial < 0 || serial > 200000 {
			return time.Time{}, false
		}
		d := serialEpoch.Add(time.Duration(serial * 24 * float64(time.Hour)))
		return d.Truncate(24 * time.Hour), true
	}

	s = strings.ReplaceAll(s, "-", "/")
	s = strings.ReplaceAll(s, ".", "/")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
