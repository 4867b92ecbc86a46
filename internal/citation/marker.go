// Package citation implements the inline citation marker grammar used in answers.
//
// A marker has the form "##<index>$$" where index is a non-negative decimal
// position into the list of retrieved chunks. Markers are plain text so they
// survive markdown rendering unescaped.
package citation

import (
	"regexp"
	"strconv"
	"strings"
)

// Pattern matches a single citation marker and captures its index.
var Pattern = regexp.MustCompile(`##([0-9]+)\$\$`)

// Format returns the marker for chunk index i.
func Format(i int) string {
	return "##" + strconv.Itoa(i) + "$$"
}

// Contains reports whether text carries at least one marker.
func Contains(text string) bool {
	return Pattern.MatchString(text)
}

// Parse returns the indices of all markers in text, in order of appearance.
// Duplicates are preserved. Indices that overflow int are skipped.
func Parse(text string) []int {
	matches := Pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	indices := make([]int, 0, len(matches))
	for _, m := range matches {
		i, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		indices = append(indices, i)
	}
	return indices
}

// InRange returns the distinct marker indices of text that fall inside [0, n),
// in order of first appearance.
func InRange(text string, n int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, i := range Parse(text) {
		if i < 0 || i >= n {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// Strip removes every marker from text. Used on conversation history before it
// is sent back to a model.
func Strip(text string) string {
	return Pattern.ReplaceAllString(text, "")
}

// ReplaceFunc rewrites every marker in text with the result of fn. fn receives
// the parsed index and the original marker text; returning marker unchanged
// leaves the marker as is.
func ReplaceFunc(text string, fn func(index int, marker string) string) string {
	return Pattern.ReplaceAllStringFunc(text, func(marker string) string {
		sub := Pattern.FindStringSubmatch(marker)
		i, err := strconv.Atoi(sub[1])
		if err != nil {
			return marker
		}
		return fn(i, marker)
	})
}

// Append adds markers for indices to the end of text, separated by a space.
func Append(text string, indices ...int) string {
	if len(indices) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for _, i := range indices {
		b.WriteString(" ")
		b.WriteString(Format(i))
	}
	return b.String()
}
