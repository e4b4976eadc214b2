package query

import (
	"html"
	"sort"
	"strings"
)

// Marker describes how matched spans are wrapped by Highlight.
// Escape, when set, is applied to every text segment (matched or not)
// before it is written, e.g. to produce safe HTML.
type Marker struct {
	Open   string
	Close  string
	Escape func(string) string
}

// Common markers.
var (
	MarkdownMarker = Marker{Open: "**", Close: "**"}
	HTMLMarker     = Marker{Open: "<mark>", Close: "</mark>", Escape: html.EscapeString}
)

// Spans returns the byte ranges of text matched by the AND terms of q,
// sorted by position. Spans that overlap or touch are merged, so the
// result never contains nested or adjacent ranges. NOT terms are ignored.
func Spans(text, q string) []Span {
	var all []Span
	for _, term := range Parse(q).Terms(OpAnd) {
		all = append(all, wholeWordSpans(text, term)...)
	}
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End > all[j].End
	})

	merged := []Span{all[0]}
	for _, s := range all[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Highlight wraps every whole-word occurrence of the AND terms of q in text
// with the marker. Without an Escape function, text outside the matched
// spans is returned byte for byte.
func Highlight(text, q string, m Marker) string {
	spans := Spans(text, q)
	if len(spans) == 0 {
		return m.escape(text)
	}

	var b strings.Builder
	b.Grow(len(text) + len(spans)*(len(m.Open)+len(m.Close)))
	pos := 0
	for _, s := range spans {
		b.WriteString(m.escape(text[pos:s.Start]))
		b.WriteString(m.Open)
		b.WriteString(m.escape(text[s.Start:s.End]))
		b.WriteString(m.Close)
		pos = s.End
	}
	b.WriteString(m.escape(text[pos:]))
	return b.String()
}

func (m Marker) escape(s string) string {
	if m.Escape == nil {
		return s
	}
	return m.Escape(s)
}
