package statement

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayouts is the ordered list of accepted date renderings: ISO
// first, then the common locale formats seen in bank exports.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
}

// NormalizeDate parses a raw date string against the supported layouts.
// Unparseable dates fall back to today rather than invalidating the
// row; the second return reports whether that fallback fired so the
// caller can surface a structured warning.
func NormalizeDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, false
		}
	}
	if d, ok := parseLooseDate(s); ok {
		return d, false
	}
	return now.Truncate(24 * time.Hour), true
}

// parseLooseDate is the free-text last resort before the today
// fallback: it retries the known layouts after squeezing repeated
// whitespace and tries a couple of verbose renderings.
func parseLooseDate(s string) (time.Time, bool) {
	cleaned := strings.Join(strings.Fields(s), " ")
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"02/01/2006 15:04",
		"2 January 2006",
		"January 2, 2006",
	} {
		if d, err := time.Parse(layout, cleaned); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// NormalizeAmount parses a raw amount that may use spaces as thousands
// separators and a comma as the decimal mark. It returns the signed
// value as parsed; sign handling (expense/income split) is the
// candidate builder's job.
func NormalizeAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	return v, nil
}

// NormalizeText trims free text and strips anything that could smuggle
// markup into downstream renderers.
func NormalizeText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<', '>':
			// Drop angle brackets outright: no HTML or script fragment
			// survives normalization.
		case '\n', '\r', '\t':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
