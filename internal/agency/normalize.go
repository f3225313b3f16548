package agency

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists entity suffixes stripped during vendor name normalization.
var legalSuffixes = []string{
	" INCORPORATED", " INC", " NFP", " CORPORATION", " CORP",
	" LLC", " LTD", " CO", " DBA",
}

// streetAbbrev maps address words to their USPS abbreviations.
var streetAbbrev = map[string]string{
	"STREET": "ST", "AVENUE": "AVE", "BOULEVARD": "BLVD", "ROAD": "RD",
	"DRIVE": "DR", "PLACE": "PL", "COURT": "CT", "LANE": "LN",
	"PARKWAY": "PKWY", "HIGHWAY": "HWY", "SUITE": "STE", "FLOOR": "FL",
	"NORTH": "N", "SOUTH": "S", "EAST": "E", "WEST": "W",
	"APARTMENT": "APT", "ROOM": "RM",
}

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	unitRe       = regexp.MustCompile(`#\s*`)
)

// foldAccents strips combining marks, so "Peña" and "Pena" compare equal.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName standardizes a vendor name for matching: accents folded,
// upper-cased, legal suffix removed, punctuation stripped, spaces collapsed.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ToUpper(foldAccents(name))

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", " AND ",
		"-", " ",
	).Replace(name)
	name = strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSpace(strings.TrimSuffix(name, suffix))
			break
		}
	}
	return name
}

// NormalizeAddress standardizes a street address for duplicate detection:
// accents folded, upper-cased, punctuation stripped and street words
// abbreviated.
func NormalizeAddress(addr string) string {
	addr = strings.ToUpper(foldAccents(strings.TrimSpace(addr)))
	addr = unitRe.ReplaceAllString(addr, "STE ")
	addr = strings.NewReplacer(",", " ", ".", "", "'", "").Replace(addr)

	words := strings.Fields(addr)
	for i, w := range words {
		if abbr, ok := streetAbbrev[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

// AddressComparer decides whether two address strings name the same place.
type AddressComparer interface {
	Same(a, b string) bool
}

// NormalizedComparer treats addresses as equal when their normalized forms match.
type NormalizedComparer struct{}

// Same implements AddressComparer.
func (NormalizedComparer) Same(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ComparerFunc adapts a function to AddressComparer.
type ComparerFunc func(a, b string) bool

// Same calls f.
func (f ComparerFunc) Same(a, b string) bool { return f(a, b) }
