package rules

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Feed values arrive as JSON numbers, numeric strings or junk. Coercion reads the
// leading numeric prefix of strings ("1200.50 USD" is 1200.5) and reports absence
// for anything without one.
var (
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
)

// toFloat coerces a raw feature value to a float64.
// ok is false for missing, non-numeric and NaN values.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		return parseFloatPrefix(n.String())
	case string:
		return parseFloatPrefix(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// toInt coerces a raw feature value to an int64, truncating fractions.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64, float32:
		f, ok := toFloat(n)
		if !ok || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(math.Trunc(f)), true
	case json.Number:
		return numberToInt(n)
	case string:
		return parseIntPrefix(n)
	default:
		return 0, false
	}
}

// numberToInt reads a decoded JSON number by value, so exponent forms such as
// 1.2e1 are 12. Out-of-range values saturate.
func numberToInt(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil && !isRangeErr(err) {
		return 0, false
	}
	return saturate(math.Trunc(f)), true
}

func saturate(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

func parseFloatPrefix(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	m := floatPrefix.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil && !isRangeErr(err) {
		return 0, false
	}
	return f, true
}

func parseIntPrefix(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	m := intPrefix.FindString(s)
	if m == "" {
		return 0, false
	}
	i, err := strconv.ParseInt(m, 10, 64)
	if err != nil && !isRangeErr(err) {
		return 0, false
	}
	return i, true
}

// ParseInt and ParseFloat saturate on overflow and report ErrRange; the
// saturated value still compares correctly against thresholds.
func isRangeErr(err error) bool {
	return errors.Is(err, strconv.ErrRange)
}

// toLowerString returns the lower-cased value when v is a string, else "".
func toLowerString(v any) string {
	s, _ := v.(string)
	return strings.ToLower(s)
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// activation builds the CEL input for one raw record.
func activation(raw map[string]any) map[string]any {
	amount, hasAmount := toFloat(raw["amount"])
	count, hasCount := toInt(raw["transaction_count"])
	hour, hasHour := toInt(raw["hour_of_day"])

	return map[string]any{
		"amount":                amount,
		"has_amount":            hasAmount,
		"transaction_count":     count,
		"has_transaction_count": hasCount,
		"hour_of_day":           hour,
		"has_hour_of_day":       hasHour,
		"transaction_type":      toLowerString(raw["transaction_type"]),
		"merchant_country":      toString(raw["merchant_country"]),
		"currency":              toString(raw["currency"]),
	}
}
