package query

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Span is a half-open byte range [Start, End) of a match inside a text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// WholeWordMatch reports whether word occurs in text as a whole word or
// phrase, ignoring case. An empty word never matches.
func WholeWordMatch(text, word string) bool {
	return containsWord(strings.ToLower(text), strings.ToLower(word))
}

// containsWord is WholeWordMatch for text and word that are already
// lowercase.
func containsWord(text, word string) bool {
	if strings.TrimSpace(word) == "" {
		return false
	}
	for pos := 0; pos <= len(text); {
		i := strings.Index(text[pos:], word)
		if i < 0 {
			return false
		}
		start := pos + i
		if atWordBoundary(text, start, start+len(word)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return false
}

// wholeWordSpans returns every whole-word occurrence of word in mixed-case
// text, as byte ranges of the original text.
func wholeWordSpans(text, word string) []Span {
	if strings.TrimSpace(word) == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(word))
	if err != nil {
		return nil
	}

	var out []Span
	for pos := 0; pos < len(text); {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if atWordBoundary(text, start, end) {
			out = append(out, Span{Start: start, End: end})
			pos = end
			continue
		}
		// Retry one rune further so an overlapping occurrence is not lost.
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

// atWordBoundary reports whether text[start:end] is neither preceded nor
// followed by a word character.
func atWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}
