package extract

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinLength is the shortest body, in characters, accepted as an article.
const DefaultMinLength = 300

// NounExtractor returns the noun candidates of a text.
type NounExtractor interface {
	Nouns(text string) []string
}

// Validator decides whether extracted text is long enough and on topic.
type Validator struct {
	MinLength int
	// Nouns enables the topic check; nil checks length only.
	Nouns NounExtractor
}

// Valid reports whether content has at least MinLength characters and shares
// a noun with keyword. A keyword without nouns passes on length alone.
func (v Validator) Valid(content, keyword string) bool {
	minLength := v.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) < minLength {
		return false
	}
	if v.Nouns == nil {
		return true
	}
	wanted := v.Nouns.Nouns(keyword)
	if len(wanted) == 0 {
		return true
	}
	present := make(map[string]struct{})
	for _, noun := range v.Nouns.Nouns(content) {
		present[noun] = struct{}{}
	}
	for _, noun := range wanted {
		if _, ok := present[noun]; ok {
			return true
		}
	}
	return false
}
