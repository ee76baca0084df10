package csvfeed

import (
	"fmt"
	"strings"
)

// Alias copies a legacy column into a canonical one when the canonical value is empty.
type Alias struct {
	Canonical string
	Legacy    string
}

// ParseAliases reads "canonical=legacy" pairs, e.g. from configuration.
func ParseAliases(pairs []string) ([]Alias, error) {
	out := make([]Alias, 0, len(pairs))
	for _, p := range pairs {
		canonical, legacy, ok := strings.Cut(p, "=")
		canonical, legacy = strings.TrimSpace(canonical), strings.TrimSpace(legacy)
		if !ok || canonical == "" || legacy == "" {
			return nil, fmt.Errorf("invalid alias %q: want canonical=legacy", p)
		}
		out = append(out, Alias{Canonical: canonical, Legacy: legacy})
	}
	return out, nil
}

// Normalizer maps a raw row onto the canonical field set.
type Normalizer struct {
	// Aliases are applied first, in order.
	Aliases []Alias
	// TrimFields get leading/trailing whitespace removed.
	TrimFields []string
	// URLFields are trimmed and lose one layer of wrapping quotes.
	URLFields []string
}

// Apply returns a normalized copy of row.
func (n Normalizer) Apply(row Row) Row {
	out := row.Clone()
	for _, a := range n.Aliases {
		if out[a.Canonical] == "" && out[a.Legacy] != "" {
			out[a.Canonical] = out[a.Legacy]
		}
	}
	for _, f := range n.TrimFields {
		if v, ok := out[f]; ok {
			out[f] = strings.TrimSpace(v)
		}
	}
	for _, f := range n.URLFields {
		if v, ok := out[f]; ok {
			out[f] = StripWrappingQuotes(v)
		}
	}
	return out
}

var wrappingQuotes = [...]byte{'"', '\'', '`'}

// StripWrappingQuotes trims s and removes one layer of matching quote
// characters (double quote, single quote, then backtick). The inner text is
// trimmed as well. Only a single layer is removed.
func StripWrappingQuotes(s string) string {
	t := strings.TrimSpace(s)
	if len(t) < 2 {
		return t
	}
	for _, q := range wrappingQuotes {
		if t[0] == q && t[len(t)-1] == q {
			return strings.TrimSpace(t[1 : len(t)-1])
		}
	}
	return t
}
