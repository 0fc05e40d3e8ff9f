package ingest

import (
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	dbpkg "adsinsight/internal/db"
)

// NormalizeHeader folds a column name for alias matching: lowercase,
// diacritics removed, underscores treated as spaces, whitespace collapsed.
func NormalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.ReplaceAll(folded, "_", " "))
	return strings.Join(strings.Fields(folded), " ")
}

// Fields is a raw row keyed by normalized header.
type Fields map[string]string

// NewFields normalizes the keys of a raw row. When two headers fold to the
// same key, the non-empty value under the lexically smallest raw header wins,
// so a replayed row always resolves the same way.
func NewFields(raw map[string]string) Fields {
	f := make(Fields, len(raw))
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		v := raw[k]
		key := NormalizeHeader(k)
		if key == "" {
			continue
		}
		v = strings.TrimSpace(v)
		if cur, ok := f[key]; ok && cur != "" {
			continue
		}
		f[key] = v
	}
	return f
}

// Resolve returns the value of the first candidate header present with a
// non-empty value.
func (f Fields) Resolve(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if v, ok := f[NormalizeHeader(c)]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Number resolves candidates and parses the value as a locale-ambiguous
// number.
func (f Fields) Number(candidates ...string) (float64, bool) {
	raw, ok := f.Resolve(candidates...)
	if !ok {
		return 0, false
	}
	return ParseNumber(raw)
}

// Rate resolves candidates and parses the value as a fraction.
func (f Fields) Rate(candidates ...string) (float64, bool) {
	raw, ok := f.Resolve(candidates...)
	if !ok {
		return 0, false
	}
	return ParseRate(raw)
}

var (
	numberNoise = strings.NewReplacer(
		"\u00a0", "", "\u202f", "", "%", "",
		"R$", "", "€", "", "£", "", "$", "",
	)
	currencyCodes = regexp.MustCompile(`(?i)BRL|USD|EUR|GBP`)
)

func cleanNumber(s string) string {
	s = numberNoise.Replace(s)
	s = currencyCodes.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), "")
}

// ParseNumber parses numbers written with either '.' or ',' as the decimal
// separator. When both appear, the rightmost one is the decimal point.
func ParseNumber(s string) (float64, bool) {
	s = cleanNumber(s)
	if s == "" {
		return 0, false
	}

	comma := strings.LastIndexByte(s, ',')
	dot := strings.LastIndexByte(s, '.')
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// ParseRate parses a rate and returns it as a fraction. A value written
// with a percent sign or greater than 1 is taken as a percentage.
func ParseRate(s string) (float64, bool) {
	v, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	if strings.Contains(s, "%") || v > 1 {
		v /= 100
	}
	return v, true
}

var dayMonthYear = regexp.MustCompile(`^(\d{1,2})([/-])(\d{1,2})([/-])(\d{4})$`)

// ParseDate accepts YYYY-MM-DD or D/M/YYYY (also D-M-YYYY). Anything that is
// not a real calendar date is rejected.
func ParseDate(s string) (dbpkg.Date, bool) {
	s = strings.TrimSpace(s)
	if d, err := dbpkg.ParseDate(s); err == nil && len(s) == len(dbpkg.DateLayout) {
		return d, true
	}

	m := dayMonthYear.FindStringSubmatch(s)
	if m == nil || m[2] != m[4] {
		return dbpkg.Date{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[3])
	year, _ := strconv.Atoi(m[5])
	if month < 1 || month > 12 || day < 1 {
		return dbpkg.Date{}, false
	}
	d := dbpkg.NewDate(year, time.Month(month), day)
	if d.Time().Day() != day || d.Time().Month() != time.Month(month) {
		return dbpkg.Date{}, false
	}
	return d, true
}
