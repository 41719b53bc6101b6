package ledger

import "errors"

// PageSize is the number of rows shown per stats or leaderboard page.
const PageSize = 10

var ErrPageRange = errors.New("page out of range")

// Page is a 1-based window over a ranked list.
type Page struct {
	Number int
	Pages  int
	Start  int
	End    int
}

// Paginate computes the bounds of page within n items. Out of range pages
// return ErrPageRange with Pages still set so callers can report the range.
func Paginate(n, page, size int) (Page, error) {
	if size <= 0 {
		size = PageSize
	}
	p := Page{Number: page, Pages: (n + size - 1) / size}
	if page < 1 || page > p.Pages {
		return p, ErrPageRange
	}
	p.Start = (page - 1) * size
	p.End = min(p.Start+size, n)
	return p, nil
}

// Window slices items to the page bounds.
func Window[T any](items []T, p Page) []T {
	return items[p.Start:p.End]
}
