package citation

import (
	"reflect"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "##0$$"},
		{7, "##7$$"},
		{123, "##123$$"},
	}

	for _, tt := range tests {
		if got := Format(tt.input); got != tt.expected {
			t.Errorf("Format(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []int
	}{
		{"no markers", "plain answer", nil},
		{"single marker", "Paris is the capital ##0$$.", []int{0}},
		{"multiple markers", "A ##1$$ ##3$$ and B ##1$$", []int{1, 3, 1}},
		{"adjacent markers", "x##2$$##5$$", []int{2, 5}},
		{"malformed markers ignored", "## 1$$ #1$$ ##a$$ ##1$", nil},
		{"overflowing index skipped", "##99999999999999999999999$$ ##4$$", []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		expected []int
	}{
		{"all in range", "a ##0$$ b ##1$$", 2, []int{0, 1}},
		{"out of range dropped", "a ##0$$ b ##5$$", 2, []int{0}},
		{"duplicates collapsed", "##1$$ ##1$$ ##0$$", 3, []int{1, 0}},
		{"no chunks", "##0$$", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InRange(tt.input, tt.n)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("InRange(%q, %d) = %v, want %v", tt.input, tt.n, got, tt.expected)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Answer ##0$$ here ##12$$.", "Answer  here ."},
		{"no markers", "no markers"},
		{"keep ## 1$$ text", "keep ## 1$$ text"},
	}

	for _, tt := range tests {
		if got := Strip(tt.input); got != tt.expected {
			t.Errorf("Strip(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestContains(t *testing.T) {
	if !Contains("see ##0$$") {
		t.Error("Contains() = false, want true")
	}
	if Contains("see #0$") {
		t.Error("Contains() = true, want false")
	}
}

func TestReplaceFunc(t *testing.T) {
	input := "one ##0$$ two ##1$$ three ##9$$"
	got := ReplaceFunc(input, func(i int, marker string) string {
		if i == 1 {
			return marker + "[img]"
		}
		return marker
	})
	want := "one ##0$$ two ##1$$[img] three ##9$$"
	if got != want {
		t.Errorf("ReplaceFunc() = %q, want %q", got, want)
	}
}

func TestAppend(t *testing.T) {
	if got := Append("row |", 3); got != "row | ##3$$" {
		t.Errorf("Append() = %q, want %q", got, "row | ##3$$")
	}
	if got := Append("text"); got != "text" {
		t.Errorf("Append() with no indices = %q, want %q", got, "text")
	}
}

// Parsing, rewriting every marker to itself and parsing again must be stable.
func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"no markers at all",
		"A ##0$$ B ##1$$ C ##0$$",
		"|a|b| ##0$$ |\n|c|d| ##1$$ |",
		"##99999999999999999999999$$ then ##4$$",
	}

	for _, input := range inputs {
		first := Parse(input)
		rewritten := ReplaceFunc(input, func(i int, _ string) string { return Format(i) })
		if rewritten != input {
			t.Errorf("ReplaceFunc(identity) changed %q to %q", input, rewritten)
		}
		second := Parse(rewritten)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Parse after rewrite = %v, want %v", second, first)
		}
		if Contains(Strip(input)) {
			t.Errorf("Strip(%q) left markers behind", input)
		}
	}
}
