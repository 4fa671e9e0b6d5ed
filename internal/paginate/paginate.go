// Package paginate splits book content into line-aligned pages.
//
// Page n takes the whole lines that start inside its character window
// [(n-1)*size, n*size), in order, while the joined page text stays within
// size. Lines are never split and no line appears on two pages. Offsets and
// sizes are measured in runes.
//
// The page count is ceil(len/size) and does not follow line boundaries, so a
// line that starts inside a page window but does not fit on that page is not
// shown on any page, and trailing pages may be empty.
package paginate

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// DefaultPageSize is the number of characters per page used by the origin
// when it segments audio.
const DefaultPageSize = 1000

var (
	// ErrInvalidPageSize is returned for a page size below one.
	ErrInvalidPageSize = errors.New("page size must be positive")
	// ErrInvalidPage is returned for a page index outside [1, total].
	ErrInvalidPage = errors.New("page out of range")
)

// Page is a derived view of one page of content.
type Page struct {
	Index int
	Total int
	Lines []string
}

// Text joins the page lines back together.
func (p Page) Text() string {
	return strings.Join(p.Lines, "\n")
}

// Len returns the length of the page text in runes.
func (p Page) Len() int {
	return utf8.RuneCountInString(p.Text())
}

// TotalPages returns ceil(len(content)/pageSize), or zero for empty content.
// The count is a display heuristic and is independent of where lines fall.
func TotalPages(content string, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}

// Lines returns the whole lines of the given page. The joined page text is at
// most pageSize runes, except that a single line longer than pageSize is
// returned alone.
func Lines(content string, pageSize, page int) ([]string, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	total := TotalPages(content, pageSize)
	if page < 1 || page > total {
		return nil, ErrInvalidPage
	}

	lo := (page - 1) * pageSize
	hi := page * pageSize
	last := page == total

	var (
		out    []string
		offset int
		length int
	)
	for _, line := range strings.Split(content, "\n") {
		start := offset
		n := utf8.RuneCountInString(line)
		offset += n + 1 // trailing line break

		if start < lo {
			continue
		}
		// A trailing empty line starts at len(content) and belongs to the
		// last page.
		if start >= hi && !last {
			break
		}
		if len(out) == 0 {
			out = append(out, line)
			length = n
			if n > pageSize {
				break
			}
			continue
		}
		if length+1+n > pageSize {
			break
		}
		out = append(out, line)
		length += 1 + n
	}
	return out, nil
}

// At returns the page view for the given index.
func At(content string, pageSize, page int) (Page, error) {
	lines, err := Lines(content, pageSize, page)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Index: page,
		Total: TotalPages(content, pageSize),
		Lines: lines,
	}, nil
}

// Text returns the joined text of a page, or "" when the page is invalid.
func Text(content string, pageSize, page int) string {
	p, err := At(content, pageSize, page)
	if err != nil {
		return ""
	}
	return p.Text()
}

// Clamp limits page to [1, total]. It returns 1 when total is zero.
func Clamp(page, total int) int {
	if total < 1 || page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}
