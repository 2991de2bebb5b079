package ui

import (
	"github.com/sahilm/fuzzy"

	"github.com/kraitsura/flowtree/pkg/explorer"
)

// lineSource adapts visible node lines to fuzzy.Source.
type lineSource []explorer.Line

func (s lineSource) String(i int) string {
	if s[i].Row.Node == nil {
		return ""
	}
	return s[i].Row.Node.FilterValue()
}

func (s lineSource) Len() int { return len(s) }

// matchLines returns the indices of lines matching query, best match first.
// Placeholder rows never match.
func matchLines(lines []explorer.Line, query string) []int {
	if query == "" {
		return nil
	}
	matches := fuzzy.FindFrom(query, lineSource(lines))
	out := make([]int, 0, len(matches))
	for _, match := range matches {
		if lines[match.Index].Row.Kind == explorer.RowNode {
			out = append(out, match.Index)
		}
	}
	return out
}
