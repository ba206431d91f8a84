package moderation

import (
	"regexp"
	"sort"
	"strings"
)

// Masker replaces the interior of every sensitive term match with '*',
// keeping the first and last rune. Matching is case-insensitive. It is a
// cosmetic filter; obfuscated spellings pass through.
type Masker struct {
	re *regexp.Regexp
}

func NewMasker(terms []string) *Masker {
	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		cleaned = append(cleaned, regexp.QuoteMeta(term))
	}
	if len(cleaned) == 0 {
		return &Masker{}
	}
	// Longest first so "asshole" wins over "ass" in the alternation.
	sort.Slice(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	return &Masker{re: regexp.MustCompile("(?i)" + strings.Join(cleaned, "|"))}
}

func (m *Masker) Mask(text string) string {
	if m == nil || m.re == nil {
		return text
	}
	return m.re.ReplaceAllStringFunc(text, maskInterior)
}

func maskInterior(match string) string {
	runes := []rune(match)
	if len(runes) <= 2 {
		return match
	}
	for i := 1; i < len(runes)-1; i++ {
		runes[i] = '*'
	}
	return string(runes)
}
