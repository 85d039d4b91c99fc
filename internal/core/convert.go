package core

// convert.go turns spreadsheet cell text into typed values.
//
// Cells arrive as whatever the user typed or Excel stored:
//   - Dates as ISO strings, day-first layouts or Excel serial numbers
//   - Percentages with a trailing % or a decimal part
//   - Excel formula prefixes (="value") and stray quotes
//
// Parse* functions report ok=false for unparseable input rather than
// guessing; empty input is handled by the caller.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/xuri/excelize/v2"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// isoPrefix gates ISO 8601 parsing so day-first text is never read
// year-first.
var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Excel serial dates outside this window are treated as plain numbers.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465 // 9999-12-31
)

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"2/1/06", "02/01/06", "2-1-06", "2.1.06", "02.01.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006", "2.1.2006", "02.01.2006",
		"Jan 2, 2006", "2 Jan 2006", "02-Jan-2006",
	}
)

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// NormalizeHeader lowercases a header cell and folds spaces and dashes to
// underscores so "Test Pack", "test-pack" and "TEST_PACK" compare equal.
func NormalizeHeader(h string) string {
	h = strings.ToLower(CleanCell(h))
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
	return strings.Trim(h, "_")
}

// ParseInt parses a whole number. Decimal values are rounded, a trailing %
// and thousands separators are ignored.
func ParseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" || !numericRegex.MatchString(s) {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}

// ParseDate parses a calendar date. Numeric cells are read as YYYYMMDD or
// as Excel serial numbers. Text is tried as ISO 8601, then day-first
// layouts, then two-digit years with the pivot.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}

	if numericRegex.MatchString(s) {
		return parseNumericDate(s)
	}

	if isoPrefix.MatchString(s) {
		if t, err := iso8601.ParseString(s); err == nil {
			return NewDate(t), true
		}
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return NewDate(t), true
		}
	}

	return Date{}, false
}

func parseNumericDate(s string) (Date, bool) {
	if len(s) == 8 {
		if t, err := time.Parse("20060102", s); err == nil {
			return NewDate(t), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < minExcelSerial || f > maxExcelSerial {
		return Date{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return Date{}, false
	}
	return NewDate(t), true
}

// ParseEstado maps a cell to an Estado. Blank means pendiente.
func ParseEstado(s string) (Estado, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pendiente":
		return EstadoPendiente, true
	case "liberado":
		return EstadoLiberado, true
	default:
		return "", false
	}
}
