package warehouse

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are the textual date forms accepted from sources that hand back
// strings (CSV extracts, SQLite TEXT columns).
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// FieldError reports a source value that could not be coerced.
type FieldError struct {
	Extract string
	Line    int
	Column  string
	Value   any
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s line %d column %s: cannot use %T(%v): %v", e.Extract, e.Line, e.Column, e.Value, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// field binds a row position to its extract so coercion errors name both.
type field struct {
	extract string
	line    int
	columns []string
	values  []any
}

func (f field) fail(i int, err error) error {
	return &FieldError{Extract: f.extract, Line: f.line, Column: f.columns[i], Value: f.values[i], Err: err}
}

func (f field) int64(i int) (int64, error) {
	n, err := asInt64(f.values[i])
	if err != nil {
		return 0, f.fail(i, err)
	}
	return n, nil
}

func (f field) decimal(i int) (decimal.Decimal, error) {
	d, err := asDecimal(f.values[i])
	if err != nil {
		return decimal.Decimal{}, f.fail(i, err)
	}
	return d, nil
}

func (f field) date(i int) (time.Time, error) {
	t, err := asDate(f.values[i])
	if err != nil {
		return time.Time{}, f.fail(i, err)
	}
	return t, nil
}

func (f field) optString(i int) *string { return asOptString(f.values[i]) }

var errNull = fmt.Errorf("value is null")

// asInt64 accepts integer kinds, integral floats and decimals, and numeric text.
func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, errNull
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("out of range")
		}
		return int64(t), nil
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case []byte:
		return parseInt(string(t))
	case string:
		return parseInt(t)
	case decimal.Decimal:
		if !t.IsInteger() {
			return 0, fmt.Errorf("not an integer")
		}
		return t.IntPart(), nil
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return 0, err
		}
		return asInt64(dv)
	default:
		return 0, fmt.Errorf("unsupported type")
	}
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer")
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range")
	}
	return int64(f), nil
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errNull
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// "2.0" or "2.0000" from decimal columns.
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("not an integer")
	}
	return d.IntPart(), nil
}

// asDecimal accepts numeric kinds, numeric text and driver.Valuer values such
// as pgtype.Numeric.
func asDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Decimal{}, errNull
	case decimal.Decimal:
		return t, nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		n, err := asInt64(t)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromInt(n), nil
	case float32:
		return floatToDecimal(float64(t))
	case float64:
		return floatToDecimal(t)
	case []byte:
		return parseDecimal(string(t))
	case string:
		return parseDecimal(t)
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return asDecimal(dv)
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type")
	}
}

func floatToDecimal(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("not a finite number")
	}
	return decimal.NewFromFloat(f), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, errNull
	}
	return decimal.NewFromString(s)
}

// asDate returns the calendar date of v at midnight UTC. The time of day is
// discarded; the date is taken in v's own location.
func asDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, errNull
	case time.Time:
		return dateOnly(t), nil
	case []byte:
		return parseDate(string(t))
	case string:
		return parseDate(t)
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return time.Time{}, err
		}
		return asDate(dv)
	default:
		return time.Time{}, fmt.Errorf("unsupported type")
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errNull
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// asOptString renders a nullable text value. Empty text stays empty.
func asOptString(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}
