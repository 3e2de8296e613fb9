package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// naTokens are the CSV tokens read as missing, matching the default NA set
// of common dataframe readers.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsMissingToken reports whether a raw text cell denotes a missing value.
func IsMissingToken(s string) bool {
	_, ok := naTokens[strings.TrimSpace(s)]
	return ok
}

// TimeLayouts are tried in order when text is converted to a datetime.
var TimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04:05",
}

// ParseNumber is the numeric coercion shared by inference, conversion,
// constant fill and the inspector. NaN and empty text do not coerce.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// ParseFloat reports range errors with ±Inf, which is still a number
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return 0, false
		}
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseInt reads base-10 int64 text.
func ParseInt(s string) (int64, bool) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return i, err == nil
}

// ParseBool accepts true/false in any letter case.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ParseTime tries TimeLayouts in order; the result is in UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ToFloat gives the numeric reading of a cell: numbers as-is, booleans as
// 0/1, datetimes as Unix nanoseconds and text through ParseNumber.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case time.Time:
		return float64(x.UnixNano()), true
	case string:
		return ParseNumber(x)
	}
	return 0, false
}

// FormatFloat renders a float the way exported files and labels show it:
// shortest round-trip digits with a trailing ".0" for integral values.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// FormatTime renders a datetime, dropping the clock when dateOnly is set.
func FormatTime(t time.Time, dateOnly bool) string {
	if dateOnly {
		return t.UTC().Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02 15:04:05.999999999")
}

// FormatValue renders a single cell as text; missing renders empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return FormatFloat(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		return FormatTime(x, false)
	}
	return ""
}

// IsMidnight reports whether t has no time-of-day component.
func IsMidnight(t time.Time) bool {
	t = t.UTC()
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
