// Package categorize maps raw field values onto coarse bucket labels with
// ordered rules. Rules are folded left to right and every matching rule
// overwrites the running label, so the last match wins.
package categorize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

// Location bucket labels.
const (
	Missing   = "MISSING"
	Residence = "RESIDENCE"
	Business  = "BUSINESS"
	Service   = "SERVICE"
)

// Time-of-day bucket labels.
const (
	Dawn      = "DAWN"
	Morning   = "MORNING"
	Afternoon = "AFTERNOON"
	Night     = "NIGHT"
)

// Predicate decides whether a rule applies to a value.
type Predicate func(value string) bool

// Rule assigns Label to values matching Match.
type Rule struct {
	Label string
	Match Predicate
}

// Categorize folds rules over value, starting from fallback.
func Categorize(value string, rules []Rule, fallback string) string {
	label := fallback
	for _, r := range rules {
		if r.Match(value) {
			label = r.Label
		}
	}
	return label
}

// Contains matches values containing any of the substrings, case-sensitively.
func Contains(subs ...string) Predicate {
	return func(v string) bool {
		for _, s := range subs {
			if s != "" && strings.Contains(v, s) {
				return true
			}
		}
		return false
	}
}

// ContainsWord matches values containing any of the substrings where the
// match is not glued to a letter or digit on either side, so "BUS" matches
// "BUS STOP" but not "BUSINESS".
func ContainsWord(subs ...string) Predicate {
	return func(v string) bool {
		for _, s := range subs {
			if s != "" && containsWord(v, s) {
				return true
			}
		}
		return false
	}
}

func containsWord(v, sub string) bool {
	for from := 0; from <= len(v)-len(sub); {
		i := strings.Index(v[from:], sub)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(sub)
		if !wordRuneBefore(v, start) && !wordRuneAt(v, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func wordRuneBefore(v string, i int) bool {
	r, n := utf8.DecodeLastRuneInString(v[:i])
	return n > 0 && isWordRune(r)
}

func wordRuneAt(v string, i int) bool {
	r, n := utf8.DecodeRuneInString(v[i:])
	return n > 0 && isWordRune(r)
}

// RuleGroup is a configurable set of substrings sharing a label.
type RuleGroup struct {
	Label    string   `mapstructure:"label" yaml:"label"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
}

// DefaultLocationGroups is the rule order used for premise descriptions.
// SERVICE comes last, so "ATM" inside a store description ends as SERVICE.
func DefaultLocationGroups() []RuleGroup {
	return []RuleGroup{
		{Label: Residence, Patterns: []string{"RESIDENCE", "DWELLING", "APARTMENT", "HOUSE", "HOMELESS SHELTER", "HOTEL/MOTEL"}},
		{Label: Business, Patterns: []string{"STORE", "SHOP", "RESTAURANT", "DINER", "CLUB", "BAR", "SALON", "BOUTIQUE", "COMMERCIAL", "CHAIN", "SUPERMARKET", "FACTORY", "WAREHOUSE"}},
		{Label: Service, Patterns: []string{"ATM", "BANK", "GAS STATION", "HOSPITAL", "DOCTOR", "DENTIST", "SCHOOL", "CHURCH", "MOSQUE", "SYNAGOGUE", "TRANSIT", "BUS", "TAXI", "PUBLIC BUILDING", "LOAN COMPANY", "CHECK CASHING"}},
	}
}

// Location categorizes premise descriptions. Empty or missing text maps to
// MISSING before any substring rule runs; text no rule matches keeps its raw
// value as its own bucket.
type Location struct {
	rules   []Rule
	missing map[string]struct{}
}

// NewLocation builds a location categorizer. missingTokens lists extra
// values (besides the empty string) treated as missing, e.g. "(null)".
func NewLocation(groups []RuleGroup, missingTokens ...string) *Location {
	rules := make([]Rule, 0, len(groups))
	for _, g := range groups {
		rules = append(rules, Rule{Label: g.Label, Match: ContainsWord(g.Patterns...)})
	}
	missing := map[string]struct{}{"": {}, "NaN": {}}
	for _, m := range missingTokens {
		missing[m] = struct{}{}
	}
	return &Location{rules: rules, missing: missing}
}

// Label returns the bucket for a raw description.
func (l *Location) Label(raw string) string {
	v := strings.TrimSpace(raw)
	if _, ok := l.missing[v]; ok {
		return Missing
	}
	return Categorize(v, l.rules, v)
}

// HourBand is a half-open hour interval [From, To).
type HourBand struct {
	Label string `mapstructure:"label" yaml:"label"`
	From  int    `mapstructure:"from" yaml:"from"`
	To    int    `mapstructure:"to" yaml:"to"`
}

// DefaultHourBands splits the day into four six-hour bands.
func DefaultHourBands() []HourBand {
	return []HourBand{
		{Label: Dawn, From: 0, To: 6},
		{Label: Morning, From: 6, To: 12},
		{Label: Afternoon, From: 12, To: 18},
		{Label: Night, From: 18, To: 24},
	}
}

// ValidateBands checks that every hour 0..23 falls in exactly one band.
func ValidateBands(bands []HourBand) error {
	var hits [24]int
	for _, b := range bands {
		if b.From < 0 || b.To > 24 || b.From >= b.To {
			return fmt.Errorf("hour band %s: invalid range [%d, %d)", b.Label, b.From, b.To)
		}
		for h := b.From; h < b.To; h++ {
			hits[h]++
		}
	}
	for h, n := range hits {
		switch {
		case n == 0:
			return fmt.Errorf("hour %d is not covered by any band", h)
		case n > 1:
			return fmt.Errorf("hour %d is covered by %d bands", h, n)
		}
	}
	return nil
}

// TimeOfDay buckets hours of the day.
type TimeOfDay struct {
	rules  []Rule
	byHour [24]string
}

// NewTimeOfDay validates the bands, builds their fold rules and resolves
// every hour once.
func NewTimeOfDay(bands []HourBand) (*TimeOfDay, error) {
	if err := ValidateBands(bands); err != nil {
		return nil, err
	}
	t := &TimeOfDay{rules: make([]Rule, 0, len(bands))}
	for _, b := range bands {
		b := b
		t.rules = append(t.rules, Rule{Label: b.Label, Match: func(v string) bool {
			h, err := strconv.Atoi(v)
			return err == nil && h >= b.From && h < b.To
		}})
	}
	for h := range t.byHour {
		t.byHour[h] = Categorize(strconv.Itoa(h), t.rules, "")
	}
	return t, nil
}

// Rules returns the bands as fold rules over hour values.
func (t *TimeOfDay) Rules() []Rule { return t.rules }

// Label returns the band for an hour in [0, 24).
func (t *TimeOfDay) Label(hour int) (string, error) {
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("hour %d out of range", hour)
	}
	return t.byHour[hour], nil
}

// Apply returns a copy of t with column dst set to fn(src) for every row.
// dst may equal src to rewrite a column in place.
func Apply(t *table.Table, src, dst string, fn func(string) (string, error)) (*table.Table, error) {
	vals, err := t.Strings(src)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		l, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out[i] = l
	}
	return t.WithColumn(table.StringCol(dst, out))
}
