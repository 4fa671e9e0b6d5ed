package paginate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		pageSize int
		want     int
	}{
		{"empty", "", 1000, 0},
		{"exact", strings.Repeat("a", 2000), 1000, 2},
		{"remainder", strings.Repeat("a", 2500), 1000, 3},
		{"single char", "x", 1000, 1},
		{"runes not bytes", strings.Repeat("é", 10), 5, 2},
		{"bad size", "abc", 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TotalPages(tc.content, tc.pageSize); got != tc.want {
				t.Errorf("TotalPages() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestLinesInvalidInput(t *testing.T) {
	if _, err := Lines("abc", 0, 1); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("expected ErrInvalidPageSize, got %v", err)
	}
	if _, err := Lines("abc", 10, 0); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("expected ErrInvalidPage for page 0, got %v", err)
	}
	if _, err := Lines("abc", 10, 2); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("expected ErrInvalidPage past the end, got %v", err)
	}
	if _, err := Lines("", 10, 1); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("expected ErrInvalidPage for empty content, got %v", err)
	}
}

func TestLinesNeverSplit(t *testing.T) {
	content := "alpha\nbeta\ngamma\ndelta"
	// windows of 8: [0,8) alpha(0) beta(6); [8,16) gamma(11); [16,22) delta(17)
	// beta starts on page 1 but would take it to 10 runes
	want := [][]string{
		{"alpha"},
		{"gamma"},
		{"delta"},
	}
	for i, w := range want {
		got, err := Lines(content, 8, i+1)
		if err != nil {
			t.Fatalf("page %d: %v", i+1, err)
		}
		if !reflect.DeepEqual(got, w) {
			t.Errorf("page %d = %q, want %q", i+1, got, w)
		}
	}
}

func TestLinesStopBeforeOverflow(t *testing.T) {
	tests := []struct {
		name    string
		content string
		size    int
		want    [][]string
	}{
		{
			name:    "second line overflows",
			content: "aaaaa\nbbbbb\nccccc",
			size:    8,
			want:    [][]string{{"aaaaa"}, {"ccccc"}, nil},
		},
		{
			name:    "lines fit exactly",
			content: "aaa\nbbb\ncc",
			size:    7,
			want:    [][]string{{"aaa", "bbb"}, {"cc"}},
		},
		{
			name:    "one page",
			content: "one\ntwo\nthree",
			size:    100,
			want:    [][]string{{"one", "two", "three"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if total := TotalPages(tc.content, tc.size); total != len(tc.want) {
				t.Fatalf("TotalPages() = %d, want %d", total, len(tc.want))
			}
			for i, w := range tc.want {
				got, err := Lines(tc.content, tc.size, i+1)
				if err != nil {
					t.Fatalf("page %d: %v", i+1, err)
				}
				if !reflect.DeepEqual(got, w) {
					t.Errorf("page %d = %q, want %q", i+1, got, w)
				}
			}
		})
	}
}

func TestLongLineReturnedAlone(t *testing.T) {
	long := strings.Repeat("x", 25)
	content := long + "\nshort"
	// 31 runes, size 10 -> 4 pages; the long line starts on page 1.
	got, err := Lines(content, 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != long {
		t.Errorf("page 1 = %q, want the long line alone", got)
	}

	// page 2 lies inside the long line
	got, _ = Lines(content, 10, 2)
	if len(got) != 0 {
		t.Errorf("page 2 = %q, want empty", got)
	}

	got, _ = Lines(content, 10, 3)
	if !reflect.DeepEqual(got, []string{"short"}) {
		t.Errorf("page 3 = %q, want [short]", got)
	}

	got, _ = Lines(content, 10, 4)
	if len(got) != 0 {
		t.Errorf("page 4 = %q, want empty", got)
	}
}

func numbered(n int, prose string) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%d %s", i, prose)
	}
	return strings.Join(lines, "\n")
}

var pageContents = []string{
	"one\ntwo\nthree\nfour\nfive\nsix\nseven\neight\nnine\nten",
	numbered(80, "The quick brown fox jumps over the lazy dog."),
	strings.Repeat("y", 3000) + "\n" + numbered(50, "z"),
	numbered(200, "ünïcödé line ✓"),
	numbered(60, strings.Repeat("w", 90)),
}

func TestPagesKeepLineOrder(t *testing.T) {
	for _, content := range pageContents {
		source := strings.Split(content, "\n")
		for _, size := range []int{1, 7, 64, 1000} {
			next := 0
			for p := 1; p <= TotalPages(content, size); p++ {
				lines, err := Lines(content, size, p)
				if err != nil {
					t.Fatalf("size %d page %d: %v", size, p, err)
				}
				for _, line := range lines {
					for next < len(source) && source[next] != line {
						next++
					}
					if next == len(source) {
						t.Fatalf("size %d page %d: line %q repeated or out of order", size, p, line)
					}
					next++
				}
			}
		}
	}
}

func TestPageBodyWithinSize(t *testing.T) {
	for _, content := range pageContents {
		for _, size := range []int{7, 64, 100, 1000} {
			for p := 1; p <= TotalPages(content, size); p++ {
				page, err := At(content, size, p)
				if err != nil {
					t.Fatalf("size %d page %d: %v", size, p, err)
				}
				if len(page.Lines) == 1 {
					continue
				}
				if n := page.Len(); n > size {
					t.Errorf("size %d page %d has %d runes over %d lines", size, p, n, len(page.Lines))
				}
			}
		}
	}
}

func TestSinglePageCoversContent(t *testing.T) {
	// the whole content fits in one page
	content := numbered(40, "ab")
	var joined []string
	for p := 1; p <= TotalPages(content, 1000); p++ {
		lines, _ := Lines(content, 1000, p)
		joined = append(joined, lines...)
	}
	if got := strings.Join(joined, "\n"); got != content {
		t.Error("single page content not reassembled")
	}
}

func TestDeterministic(t *testing.T) {
	content := strings.Repeat("line\n", 500)
	first := Text(content, 100, 3)
	for i := 0; i < 10; i++ {
		if got := Text(content, 100, 3); got != first {
			t.Fatalf("call %d returned different text", i)
		}
	}
}

func TestAt(t *testing.T) {
	content := strings.Repeat("b", 2500)
	p, err := At(content, DefaultPageSize, 3)
	if err != nil {
		t.Fatal(err)
	}
	if p.Index != 3 || p.Total != 3 {
		t.Errorf("At() = %d/%d, want 3/3", p.Index, p.Total)
	}
	if Text(content, DefaultPageSize, 4) != "" {
		t.Error("Text() past the end should be empty")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ page, total, want int }{
		{0, 5, 1},
		{3, 5, 3},
		{9, 5, 5},
		{2, 0, 1},
	}
	for _, tc := range tests {
		if got := Clamp(tc.page, tc.total); got != tc.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tc.page, tc.total, got, tc.want)
		}
	}
}
