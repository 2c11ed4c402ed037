package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{"short input is one chunk", "hello", 10, []string{"hello"}},
		{"exactly at limit", "hello", 5, []string{"hello"}},
		{"prefers newline", "abcde\nfghijklm", 10, []string{"abcde", "\nfghijklm"}},
		{"falls back to space", "abcde fghijklm", 10, []string{"abcde", " fghijklm"}},
		{"newline wins over later space", "ab\ncd efgh", 8, []string{"ab", "\ncd efgh"}},
		{"hard cut without whitespace", "abcdefghijklm", 5, []string{"abcde", "fghij", "klm"}},
		{"limit counts runes not bytes", strings.Repeat("ż", 7), 3, []string{"żżż", "żżż", "ż"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Split(tc.in, tc.limit)
			if len(got) != len(tc.want) {
				t.Fatalf("chunks = %q, want %q", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSplitReassemblesAndRespectsCeiling(t *testing.T) {
	t.Parallel()

	inputs := []string{
		strings.Repeat("word boundary test ", 300),
		strings.Repeat("line one\nline two\n", 250),
		strings.Repeat("x", 4500),
		strings.Repeat("żółć gęślą jaźń\n", 200),
	}
	for _, in := range inputs {
		chunks := Split(in, MessageLimit)
		for i, c := range chunks {
			if n := utf8.RuneCountInString(c); n > MessageLimit {
				t.Errorf("chunk %d has %d runes, ceiling is %d", i, n, MessageLimit)
			}
		}
		if strings.Join(chunks, "") != in {
			t.Error("concatenated chunks do not reproduce the input")
		}
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello there", 5, "hello…"},
		{"żółćwca", 4, "żółć…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
