package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ManualReviewCode replaces generated codes that cannot be disambiguated
// automatically.
const ManualReviewCode = "MANUAL_REVIEW"

// UnknownName is written as name_adjudicated for names left unresolved when
// a dataset opts into it.
const UnknownName = "unknown"

// ErrDuplicateTaxonName is returned when the same name appears twice in a
// list of taxa to code.
var ErrDuplicateTaxonName = errors.New("duplicate taxon name")

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanWhitespace replaces non-breaking spaces, collapses whitespace runs to
// one space and trims the ends.
func CleanWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanName normalizes a recorded taxon name for lookup: NFC composition,
// whitespace cleanup, "subsp." written as "ssp." and a trailing "sp." or
// "spp." dropped.
func CleanName(s string) string {
	s = CleanWhitespace(norm.NFC.String(s))
	if s == "" {
		return s
	}
	fields := strings.Split(s, " ")
	for i, f := range fields {
		if f == "subsp." {
			fields[i] = "ssp."
		}
	}
	if n := len(fields); n > 1 && (fields[n-1] == "sp." || fields[n-1] == "spp.") {
		fields = fields[:n-1]
	}
	return strings.Join(fields, " ")
}

// Checklist resolves recorded names to accepted names. A name maps to its
// accepted code and the accepted code maps to the accepted name.
type Checklist struct {
	acceptedName map[string]string
	byName       map[string]string
}

// NewChecklist indexes taxa. Names are cleaned before indexing.
func NewChecklist(taxa []Taxon) *Checklist {
	c := &Checklist{
		acceptedName: make(map[string]string),
		byName:       make(map[string]string, len(taxa)),
	}
	for _, t := range taxa {
		name := CleanName(t.Name)
		c.byName[name] = t.AcceptedCode
		if t.Code == t.AcceptedCode {
			c.acceptedName[t.AcceptedCode] = name
		}
	}
	return c
}

// Len reports the number of indexed names.
func (c *Checklist) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}

// Resolve returns the accepted name for name.
func (c *Checklist) Resolve(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	code, ok := c.byName[CleanName(name)]
	if !ok {
		return "", false
	}
	accepted, ok := c.acceptedName[code]
	return accepted, ok
}

// IsAccepted reports whether name is itself an accepted name.
func (c *Checklist) IsAccepted(name string) bool {
	if c == nil {
		return false
	}
	accepted, ok := c.Resolve(name)
	return ok && accepted == CleanName(name)
}

// Resolution is the outcome of resolving one recorded name or code.
type Resolution struct {
	Original    string
	Adjudicated string
	Matched     bool
}

// NameResolver turns recorded codes or names into original and adjudicated
// names. Codes translates dataset-specific codes to names. Corrections maps a
// cleaned name to the name to look up instead; the original name is kept.
type NameResolver struct {
	Checklist   *Checklist
	Codes       map[string]string
	Corrections map[string]string
}

// Resolve resolves a recorded value.
func (r NameResolver) Resolve(recorded string) Resolution {
	value := CleanWhitespace(recorded)
	if name, ok := r.Codes[value]; ok {
		value = name
	}
	original := CleanName(value)

	lookup := original
	if corrected, ok := r.Corrections[original]; ok {
		lookup = CleanName(corrected)
	}

	accepted, ok := r.Checklist.Resolve(lookup)
	return Resolution{Original: original, Adjudicated: accepted, Matched: ok}
}

// GenerateTaxonCode builds a short code from a name: the first six letters
// of a lone genus, otherwise three letters each of genus and species, plus
// the first letter of the infraspecific rank and three letters of the
// infraspecific epithet when present.
func GenerateTaxonCode(name string) string {
	parts := strings.SplitN(strings.ToLower(CleanWhitespace(name)), " ", 4)
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	if len(parts) == 1 {
		return prefix(parts[0], 6)
	}
	code := prefix(parts[0], 3) + prefix(parts[1], 3)
	if len(parts) == 4 {
		code += prefix(parts[2], 1) + prefix(parts[3], 3)
	}
	return code
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// FixDuplicateCodes disambiguates codes shared by several taxa. Taxa are
// sorted by name; short codes (six characters or fewer) get a 1-based
// counter appended in that order and longer codes are replaced with
// ManualReviewCode and flagged Manual.
func FixDuplicateCodes(taxa []CodedTaxon) ([]CodedTaxon, error) {
	out := append([]CodedTaxon(nil), taxa...)
	seen := make(map[string]bool, len(out))
	for _, t := range out {
		if seen[t.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTaxonName, t.Name)
		}
		seen[t.Name] = true
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	counts := make(map[string]int, len(out))
	for _, t := range out {
		counts[t.Code]++
	}

	counter := make(map[string]int)
	for i, t := range out {
		if counts[t.Code] < 2 {
			continue
		}
		if utf8.RuneCountInString(t.Code) <= 6 {
			counter[t.Code]++
			out[i].Code = t.Code + strconv.Itoa(counter[t.Code])
			continue
		}
		out[i].Code = ManualReviewCode
		out[i].Manual = true
	}
	return out, nil
}
