package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceSource(n int, calls *int) pageFunc[int] {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i + 1
	}
	return func(_ context.Context, limit, offset int) ([]int, error) {
		*calls++
		if offset >= len(rows) {
			return nil, nil
		}
		return rows[offset:min(offset+limit, len(rows))], nil
	}
}

func TestCollectPagesReturnsEveryRowOnce(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 7, 10, 99, 100, 101} {
		for _, k := range []int{1, 3, 10, 100, 1000} {
			calls := 0
			got, err := collectPages(context.Background(), k, sliceSource(n, &calls))
			require.NoError(t, err)

			require.Len(t, got, n, "n=%d k=%d", n, k)
			for i, v := range got {
				assert.Equal(t, i+1, v, "gap or duplicate at %d (n=%d k=%d)", i, n, k)
			}
			assert.Equal(t, n/k+1, calls, "n=%d k=%d", n, k)
		}
	}
}

func TestCollectPagesDefaultsPageSize(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := collectPages(context.Background(), 0, sliceSource(250, &calls))
	require.NoError(t, err)
	assert.Len(t, got, 250)
	assert.Equal(t, 3, calls)
}

func TestCollectPagesPropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := collectPages(context.Background(), 10, func(_ context.Context, _, offset int) ([]int, error) {
		if offset == 10 {
			return nil, boom
		}
		return make([]int, 10), nil
	})
	assert.ErrorIs(t, err, boom)
}
