package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical text form of a calendar date key.
const DateLayout = "2006-01-02"

// textTimeLayouts are the layouts SQLite-style drivers use when a time value
// round-trips through a TEXT column.
var textTimeLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// NormalizeKey converts a dimension key value to a canonical string form,
// suitable for in-memory lookup keys (e.g. "29825" or "2024-01-15").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps lookups consistent across drivers:
//   - integers of any width render as base-10
//   - time.Time at midnight renders as a date, otherwise RFC3339Nano in UTC
//   - strings holding a timestamp (SQLite stores dates as text) render like time.Time
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return normalizeText(t)
	case []byte:
		return normalizeText(string(t))
	case int:
		return strconv.Itoa(t)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return DateKey(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DateKey renders t as a date key. Values with a clock component keep it so
// they never collide with a pure date.
func DateKey(t time.Time) string {
	h, m, s := t.Clock()
	if h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return t.Format(DateLayout)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < len(DateLayout) || s[4] != '-' {
		return s
	}
	for _, layout := range textTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateKey(t)
		}
	}
	return s
}
