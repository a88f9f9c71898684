// Package nlp extracts search-relevant tokens from Korean headline titles.
//
// Nouns is a lightweight heuristic analyzer: it segments on whitespace and
// punctuation, strips trailing particles and drops predicate forms. It is
// tuned for short news and trend titles rather than running prose.
package nlp

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// particles are trailing postpositions removed from candidate nouns, longest first.
var particles = []string{
	"에서는", "으로는", "에게서", "이라는", "이라고", "이라며",
	"에서", "에게", "한테", "으로", "부터", "까지", "처럼", "보다", "라는", "라고", "마저", "조차", "이랑",
	"은", "는", "이", "가", "을", "를", "의", "에", "로", "와", "과", "도", "만", "께", "랑",
}

// monoNouns are one-syllable nouns that commonly carry a one-rune particle
// in headlines. Syllables that also start frequent two-rune nouns ending in a
// particle rune (물가, 차이, 불가, 상가) are left out.
var monoNouns = map[string]struct{}{
	"골": {}, "팬": {}, "집": {}, "책": {}, "돈": {}, "꿈": {}, "밥": {}, "술": {},
	"옷": {}, "땅": {}, "맛": {}, "빵": {}, "꽃": {}, "팀": {}, "힘": {}, "빛": {},
}

// predicateEndings mark verb or adjective forms that are never nouns.
var predicateEndings = []string{
	"했다", "한다", "된다", "됐다", "였다", "이다", "하는", "하던", "했던", "되는",
	"하며", "하고", "해서", "하자", "한", "된", "했",
}

// FirstToken returns the first significant token of a title: the text before
// the first comma, then its first whitespace-separated field. Connector glyphs
// such as ♥ and · stay part of the token.
func FirstToken(title string) string {
	title = norm.NFC.String(title)
	chunk, _, _ := strings.Cut(title, ",")
	chunk = strings.TrimSpace(chunk)
	if fields := strings.Fields(chunk); len(fields) > 0 {
		return fields[0]
	}
	return chunk
}

// Tokenizer extracts noun candidates from titles.
type Tokenizer struct {
	minRunes int
}

// New returns a Tokenizer that ignores candidates shorter than two runes.
func New() *Tokenizer {
	return &Tokenizer{minRunes: 2}
}

// Nouns returns noun candidates in title order without duplicates.
func (t *Tokenizer) Nouns(title string) []string {
	title = norm.NFC.String(title)
	seen := make(map[string]struct{})
	var out []string
	for _, word := range strings.FieldsFunc(title, isSeparator) {
		noun, ok := t.noun(word)
		if !ok {
			continue
		}
		if _, dup := seen[noun]; dup {
			continue
		}
		seen[noun] = struct{}{}
		out = append(out, noun)
	}
	return out
}

func (t *Tokenizer) noun(word string) (string, bool) {
	if !hasLetter(word) {
		return "", false
	}
	if !isHangul(word) {
		return word, utf8.RuneCountInString(word) >= t.minRunes
	}
	if isPredicate(word) {
		return "", false
	}
	word = stripParticle(word)
	return word, utf8.RuneCountInString(word) >= t.minRunes
}

func stripParticle(word string) string {
	for _, p := range particles {
		stem, ok := strings.CutSuffix(word, p)
		if !ok || stem == "" {
			continue
		}
		// one-rune particles collide with common noun endings (국가, 아이)
		if utf8.RuneCountInString(p) == 1 && utf8.RuneCountInString(stem) < 2 {
			if _, ok := monoNouns[stem]; !ok {
				continue
			}
		}
		return stem
	}
	return word
}

func isPredicate(word string) bool {
	n := utf8.RuneCountInString(word)
	for _, end := range predicateEndings {
		if strings.HasSuffix(word, end) && n > utf8.RuneCountInString(end) {
			return true
		}
	}
	return n >= 3 && strings.HasSuffix(word, "다")
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func hasLetter(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isHangul(word string) bool {
	for _, r := range word {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
