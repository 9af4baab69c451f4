package core

// convert.go turns raw cell text into typed Values.
//
// Two entry points exist with different strictness:
//   - inferCell/inferColumnType run at load time and only recognize plain
//     numbers and true/false, so stored text is never reinterpreted.
//   - Coerce runs on edits and is lenient the way users type: currency
//     symbols, thousands grouping, accounting negatives, yes/no booleans.
//
// Numeric parsing goes through pgtype.Numeric so decimal text is validated by
// the same arbitrary-precision parser the rest of the stack uses. A number is
// only stored as a Number when float64 holds it exactly; long ids and keys
// stay text so they export and search the way they were written.

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// plainNumberRegex matches integers and decimals without exponent.
// pgtype.Numeric.Scan does not accept scientific notation.
var plainNumberRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// groupedNumberRegex matches numbers with comma thousands grouping.
var groupedNumberRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// ParseNumeric converts plain decimal text to pgtype.Numeric.
// Returns invalid if the text is not a plain decimal number.
func ParseNumeric(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if !plainNumberRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ParseLenientNumeric converts user-typed numeric text to pgtype.Numeric.
// Handles currency symbols, thousands grouping and accounting format
// (parentheses for negative).
func ParseLenientNumeric(s string) pgtype.Numeric {
	plain, ok := plainLenient(s)
	if !ok {
		return pgtype.Numeric{Valid: false}
	}
	return ParseNumeric(plain)
}

// plainLenient strips currency symbols, thousands grouping and accounting
// parentheses, leaving text for ParseNumeric.
func plainLenient(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.TrimSpace(s)

	// A lone comma is a decimal separator in many locales, so only strip
	// commas that form thousands groups.
	if groupedNumberRegex.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}

	if isNegative {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return "", false
		}
		s = "-" + s
	}
	return s, true
}

// ParseBool converts a string to pgtype.Bool.
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) pgtype.Bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}
	case "false", "f", "no", "n", "0":
		return pgtype.Bool{Bool: false, Valid: true}
	default:
		return pgtype.Bool{Valid: false}
	}
}

// numericValue converts a valid pgtype.Numeric to a Number value.
func numericValue(n pgtype.Numeric) (Value, bool) {
	if !n.Valid {
		return Value{}, false
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return Value{}, false
	}
	return Number(f.Float64), true
}

// exactNumber converts plain decimal text to a Number when the shortest
// float64 form reproduces it, ignoring a leading '+' and trailing fractional
// zeros. "12345678901234567" and "007" fail and are left to the caller.
func exactNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	v, ok := numericValue(ParseNumeric(s))
	if !ok {
		return Value{}, false
	}
	f, _ := v.Float()
	if strconv.FormatFloat(f, 'f', -1, 64) != canonicalDecimal(s) {
		return Value{}, false
	}
	return v, true
}

// canonicalDecimal writes plain decimal text the way strconv.FormatFloat
// does: no '+', no trailing fractional zeros, a zero before a bare point and
// no sign on zero.
func canonicalDecimal(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")
	whole, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")
	if whole == "" {
		whole = "0"
	}
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// parseStrictBool recognizes only true/false, case-insensitively.
func parseStrictBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// isBlankText reports whether raw cell text represents an empty cell.
func isBlankText(s string) bool {
	return strings.TrimSpace(s) == ""
}

// inferColumnType picks the narrowest type all non-blank cells fit.
func inferColumnType(cells []string) ColumnType {
	seen := false
	allNumber, allBool := true, true
	for _, c := range cells {
		if isBlankText(c) {
			continue
		}
		seen = true
		if allNumber {
			if _, ok := exactNumber(c); !ok {
				allNumber = false
			}
		}
		if allBool {
			if _, ok := parseStrictBool(c); !ok {
				allBool = false
			}
		}
		if !allNumber && !allBool {
			return ColumnText
		}
	}
	switch {
	case !seen:
		return ColumnEmpty
	case allNumber:
		return ColumnNumber
	case allBool:
		return ColumnBoolean
	default:
		return ColumnText
	}
}

// inferCell converts raw load-time text for a column already typed by
// inferColumnType.
func inferCell(raw string, t ColumnType) Value {
	if isBlankText(raw) {
		return Null()
	}
	switch t {
	case ColumnNumber:
		if v, ok := exactNumber(raw); ok {
			return v
		}
	case ColumnBoolean:
		if b, ok := parseStrictBool(raw); ok {
			return Bool(b)
		}
	}
	return Text(raw)
}

// Coerce converts a raw edit value to the given column type. An empty or
// whitespace-only raw value yields Null. When the value does not fit the
// type, Coerce returns Text(raw) together with a *CoercionError so callers
// can report the softening; the returned Value is always usable.
func Coerce(column, raw string, t ColumnType) (Value, error) {
	if isBlankText(raw) {
		return Null(), nil
	}
	switch t {
	case ColumnNumber:
		if plain, ok := plainLenient(raw); ok {
			if v, ok := exactNumber(plain); ok {
				return v, nil
			}
		}
	case ColumnBoolean:
		if b := ParseBool(raw); b.Valid {
			return Bool(b.Bool), nil
		}
	case ColumnEmpty:
		if v, ok := exactNumber(raw); ok {
			return v, nil
		}
		if b, ok := parseStrictBool(raw); ok {
			return Bool(b), nil
		}
		return Text(raw), nil
	case ColumnText:
		return Text(raw), nil
	}
	return Text(raw), &CoercionError{Column: column, Raw: raw, Type: t}
}
