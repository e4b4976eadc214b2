// Package query implements the boolean free-text search language used for
// case narratives and image captions.
//
// A query is a sequence of groups separated by the keywords AND and NOT.
// Terms inside one group are synonyms joined by a lowercase " or ":
//
//	(diabetes or diabetic) AND (hypertension) NOT insulin
//
// Parentheses are decoration only; they are stripped from terms and never
// checked for balance. Matching is whole-word and case-insensitive.
package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Operator is the role of a condition in a query.
type Operator string

// Condition operators.
const (
	OpAnd Operator = "AND"
	OpNot Operator = "NOT"
)

const orSeparator = " or "

// Condition is one AND or NOT group of synonym terms.
type Condition struct {
	Operator Operator `json:"operator"`
	Terms    []string `json:"terms"`
}

// Query is a parsed query: conditions in the order they appear in the source.
type Query []Condition

// Parse turns a raw query string into its conditions. It never fails;
// malformed input degrades to whatever groups can be recovered.
func Parse(s string) Query {
	var q Query
	op := OpAnd
	for _, tok := range splitKeywords(s) {
		tok = strings.TrimSpace(tok)
		if kw, ok := keyword(tok); ok {
			op = kw
			continue
		}
		if tok == "" {
			continue
		}
		parts := strings.Split(strings.ToLower(tok), orSeparator)
		terms := make([]string, 0, len(parts))
		for _, p := range parts {
			terms = append(terms, normalizeTerm(p))
		}
		q = append(q, Condition{Operator: op, Terms: terms})
	}
	return q
}

// keyword reports whether tok is exactly AND or NOT, ignoring case.
func keyword(tok string) (Operator, bool) {
	switch strings.ToUpper(tok) {
	case string(OpAnd):
		return OpAnd, true
	case string(OpNot):
		return OpNot, true
	}
	return "", false
}

// splitKeywords splits s around standalone AND/NOT keywords and keeps each
// keyword as its own token. Text between keywords is returned untouched.
func splitKeywords(s string) []string {
	var tokens []string
	last := 0
	for i := 0; i+3 <= len(s); {
		if isKeywordAt(s, i) {
			tokens = append(tokens, s[last:i], s[i:i+3])
			i += 3
			last = i
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return append(tokens, s[last:])
}

func isKeywordAt(s string, i int) bool {
	w := s[i : i+3]
	if !strings.EqualFold(w, "and") && !strings.EqualFold(w, "not") {
		return false
	}
	// EqualFold accepts non-ASCII folds such as the Kelvin sign; the
	// keywords are plain ASCII only.
	for j := 0; j < 3; j++ {
		if w[j] >= utf8.RuneSelf {
			return false
		}
	}
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		if isWordRune(r) {
			return false
		}
	}
	if i+3 < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i+3:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// normalizeTerm strips quotes, whitespace and stray punctuation such as
// parentheses from both ends of a term. Interior characters are kept.
func normalizeTerm(t string) string {
	return strings.TrimFunc(t, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isWordRune reports whether r can be part of a word for boundary checks.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Terms returns every term of the conditions with the given operator, in
// query order, skipping empty ones.
func (q Query) Terms(op Operator) []string {
	var out []string
	for _, c := range q {
		if c.Operator != op {
			continue
		}
		for _, t := range c.Terms {
			if t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// String renders the conditions back into query syntax.
func (q Query) String() string {
	var b strings.Builder
	for i, c := range q {
		if i > 0 || c.Operator != OpAnd {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(string(c.Operator))
			b.WriteByte(' ')
		}
		b.WriteByte('(')
		b.WriteString(strings.Join(c.Terms, orSeparator))
		b.WriteByte(')')
	}
	return b.String()
}
