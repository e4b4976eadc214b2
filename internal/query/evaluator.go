package query

import "strings"

// Matches parses q and reports whether text satisfies it. Within a
// condition the terms are alternatives; across conditions every AND group
// must match and no NOT group may match. An empty query matches everything.
func Matches(text, q string) bool {
	return Parse(q).Match(text)
}

// Match evaluates the parsed conditions against text.
func (q Query) Match(text string) bool {
	text = strings.ToLower(text)
	for _, c := range q {
		switch c.Operator {
		case OpAnd:
			if !anyTermMatches(text, c.Terms) {
				return false
			}
		case OpNot:
			if anyTermMatches(text, c.Terms) {
				return false
			}
		}
	}
	return true
}

// anyTermMatches expects lowercase text; parsed terms are lowercase.
func anyTermMatches(text string, terms []string) bool {
	for _, t := range terms {
		if containsWord(text, t) {
			return true
		}
	}
	return false
}
