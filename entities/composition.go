package entities

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Link roles.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

// CompositionLink joins a drug to a salt with its strength.
// StrengthValue is nil when the strength is unknown; StrengthUnit is then optional.
type CompositionLink struct {
	SaltID        string           `json:"saltId"`
	SaltName      string           `json:"name"`
	StrengthValue *decimal.Decimal `json:"strengthValue"`
	StrengthUnit  string           `json:"strengthUnit"`
	Role          string           `json:"role,omitempty"`
	Order         int              `json:"order"`
}

// HasStrength reports whether a strength value is present.
func (l CompositionLink) HasStrength() bool {
	return l.StrengthValue != nil
}

// SameStrength reports whether two links agree on strength value and unit.
// Values are compared numerically, units case-insensitively.
func (l CompositionLink) SameStrength(other CompositionLink) bool {
	switch {
	case l.StrengthValue == nil && other.StrengthValue == nil:
	case l.StrengthValue == nil || other.StrengthValue == nil:
		return false
	case !l.StrengthValue.Equal(*other.StrengthValue):
		return false
	}
	return NormalizeUnit(l.StrengthUnit) == NormalizeUnit(other.StrengthUnit)
}

// String renders the link the way pharmacists write it, e.g. "Paracetamol 500mg".
func (l CompositionLink) String() string {
	if l.StrengthValue == nil {
		return l.SaltName
	}
	return fmt.Sprintf("%s %s%s", l.SaltName, l.StrengthValue.String(), l.StrengthUnit)
}

// CloneLinks deep-copies a link slice including strength pointers.
func CloneLinks(links []CompositionLink) []CompositionLink {
	if links == nil {
		return nil
	}
	out := make([]CompositionLink, len(links))
	for i, l := range links {
		out[i] = l
		if l.StrengthValue != nil {
			v := *l.StrengthValue
			out[i].StrengthValue = &v
		}
	}
	return out
}

// SameComposition reports whether two compositions have set-equal signatures:
// same cardinality and every (salt, strength, unit) triple of a present in b.
// Order is irrelevant. Salt ids are unique within a drug, so pairing by id is enough.
func SameComposition(a, b []CompositionLink) bool {
	if len(a) != len(b) {
		return false
	}
	bySalt := make(map[string]CompositionLink, len(b))
	for _, l := range b {
		bySalt[l.SaltID] = l
	}
	for _, l := range a {
		other, ok := bySalt[l.SaltID]
		if !ok || !l.SameStrength(other) {
			return false
		}
	}
	return true
}

// NormalizeSaltName folds case, strips diacritics and collapses whitespace so
// "Paracétamol " and "PARACETAMOL" resolve to the same salt.
func NormalizeSaltName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// NormalizeUnit trims and lower-cases a strength unit.
func NormalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

var strengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:[.,][0-9]+)?)\s*([a-zA-Zµ%/]+(?:/[0-9a-zA-Z]+)?)?\s*$`)

// ParseStrength splits a strength such as "500mg", "2.5 ml" or "0,5mg/ml".
func ParseStrength(s string) (decimal.Decimal, string, error) {
	m := strengthPattern.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, "", fmt.Errorf("unrecognised strength %q", s)
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "."))
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid strength value %q: %w", m[1], err)
	}
	return value, m[2], nil
}

var trailingStrength = regexp.MustCompile(`^(.*?)\s+([0-9]+(?:[.,][0-9]+)?\s*[a-zA-Zµ%/]+(?:/[0-9a-zA-Z]+)?)$`)

// ParseCompositionText parses "Salt A 500mg + Salt B 10mg" into unresolved links
// (SaltID empty). Components without a recognisable strength keep a nil strength.
func ParseCompositionText(text string) []CompositionLink {
	var links []CompositionLink
	for _, part := range strings.Split(text, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		link := CompositionLink{SaltName: part, Order: len(links), Role: RoleSecondary}
		if len(links) == 0 {
			link.Role = RolePrimary
		}
		if m := trailingStrength.FindStringSubmatch(part); m != nil {
			if value, unit, err := ParseStrength(m[2]); err == nil {
				link.SaltName = strings.TrimSpace(m[1])
				link.StrengthValue = &value
				link.StrengthUnit = unit
			}
		}
		links = append(links, link)
	}
	return links
}
