package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i + 1
	}

	p, err := Paginate(len(items), 1, PageSize)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Window(items, p))

	p, err = Paginate(len(items), 3, PageSize)
	require.NoError(t, err)
	assert.Equal(t, []int{21, 22, 23, 24, 25}, Window(items, p))

	for _, page := range []int{0, 4, -1} {
		p, err = Paginate(len(items), page, PageSize)
		assert.ErrorIs(t, err, ErrPageRange, "page %d", page)
		assert.Equal(t, 3, p.Pages)
	}
}

func TestPaginateEmpty(t *testing.T) {
	p, err := Paginate(0, 1, PageSize)
	assert.ErrorIs(t, err, ErrPageRange)
	assert.Zero(t, p.Pages)
}
