// Package core provides amount parsing and display formatting.
//
// Amounts arrive as free text. Parsing reads the longest leading number and
// ignores whatever follows it, so "12abc" is 12 and "abc" is NaN.
package core

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var displayPrinter = message.NewPrinter(language.AmericanEnglish)

// ParseAmount converts the leading numeric prefix of s to a float64.
//
// Examples:
//
//	ParseAmount("100")      -> 100
//	ParseAmount(" 50.5 EUR") -> 50.5
//	ParseAmount("1e3")      -> 1000
//	ParseAmount("-Infinity") -> -Inf
//	ParseAmount("abc")      -> NaN
func ParseAmount(s string) float64 {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
	prefix := leadingNumber(s)
	if prefix == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return f
}

func leadingNumber(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		return s[:i+len("Infinity")]
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return s[:i]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// FormatFixed2 renders x with exactly two decimals. Exact halfway values
// round away from zero; NaN and infinities render as words, and magnitudes
// of 1e21 or more fall back to exponent notation.
func FormatFixed2(x float64) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "Infinity"
	case math.IsInf(x, -1):
		return "-Infinity"
	case math.Abs(x) >= 1e21:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case x == 0:
		return "0.00"
	}

	sign := ""
	if x < 0 {
		sign = "-"
		x = -x
	}

	// x*200 odd integer means x*100 ends in exactly .5
	r := new(big.Rat).SetFloat64(x)
	r.Mul(r, big.NewRat(200, 1))
	if r.IsInt() && r.Num().Bit(0) == 1 {
		n := new(big.Int).Add(r.Num(), big.NewInt(1))
		n.Rsh(n, 1)
		digits := n.String()
		for len(digits) < 3 {
			digits = "0" + digits
		}
		return sign + digits[:len(digits)-2] + "." + digits[len(digits)-2:]
	}
	return sign + strconv.FormatFloat(x, 'f', 2, 64)
}

// FormatAmount renders a dollar amount with digit grouping and at most
// three fraction digits, e.g. 1234.5 -> "$1,234.5".
func FormatAmount(v float64) string {
	switch {
	case math.IsNaN(v):
		return "$NaN"
	case math.IsInf(v, 1):
		return "$∞"
	case math.IsInf(v, -1):
		return "$-∞"
	}
	return "$" + displayPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

// FormatDate renders a backend date as M/D/YYYY. Text that is not a date
// is returned unchanged.
func FormatDate(s string) string {
	t, ok := ParseRecordDate(s)
	if !ok {
		return s
	}
	return t.Format("1/2/2006")
}

// ParseRecordDate accepts plain dates and RFC 3339 timestamps.
func ParseRecordDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
