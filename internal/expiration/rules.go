// Package expiration computes locate-ticket expiration dates and derives
// lifecycle statuses from them.
package expiration

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultValidityDays applies to jurisdictions without an explicit rule.
const DefaultValidityDays = 30

var builtinRules = map[string]int{
	"VA": 30,
	"MD": 15,
	"DC": 30,
}

// Rules maps two-letter jurisdiction codes to validity periods in days.
// A Rules value is immutable once built.
type Rules struct {
	days        map[string]int
	defaultDays int
}

// NewRules copies days into a new rule table. Codes are normalized to upper
// case. A non-positive defaultDays falls back to DefaultValidityDays.
func NewRules(days map[string]int, defaultDays int) Rules {
	if defaultDays <= 0 {
		defaultDays = DefaultValidityDays
	}
	normalized := make(map[string]int, len(days))
	for code, d := range days {
		normalized[normalizeCode(code)] = d
	}
	return Rules{days: normalized, defaultDays: defaultDays}
}

// DefaultRules returns the built-in VA/MD/DC table.
func DefaultRules() Rules {
	return NewRules(builtinRules, DefaultValidityDays)
}

// DaysValid returns the validity period for jurisdiction. Unknown or empty
// codes get the default period; they are never rejected.
func (r Rules) DaysValid(jurisdiction string) int {
	if d, ok := r.days[normalizeCode(jurisdiction)]; ok {
		return d
	}
	return r.DefaultDays()
}

// DefaultDays returns the fallback validity period.
func (r Rules) DefaultDays() int {
	if r.defaultDays <= 0 {
		return DefaultValidityDays
	}
	return r.defaultDays
}

// Known reports whether jurisdiction has an explicit rule.
func (r Rules) Known(jurisdiction string) bool {
	_, ok := r.days[normalizeCode(jurisdiction)]
	return ok
}

// Table returns a copy of the explicit rules.
func (r Rules) Table() map[string]int {
	out := make(map[string]int, len(r.days))
	for code, d := range r.days {
		out[code] = d
	}
	return out
}

// Codes returns the jurisdictions with explicit rules in sorted order.
func (r Rules) Codes() []string {
	codes := make([]string, 0, len(r.days))
	for code := range r.days {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ParseRules parses a "VA=30,MD=15" list. Whitespace around entries is
// ignored; an empty string yields an empty map.
func ParseRules(raw string) (map[string]int, error) {
	out := map[string]int{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, days, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("expiration rule %q: expected CODE=DAYS", entry)
		}
		code = normalizeCode(code)
		if len(code) != 2 {
			return nil, fmt.Errorf("expiration rule %q: jurisdiction must be two letters", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(days))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("expiration rule %q: days must be a positive integer", entry)
		}
		out[code] = n
	}
	return out, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
