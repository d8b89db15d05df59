package db

import (
	"context"
	"fmt"
)

const DefaultPageSize = 100

// pageFunc reads one page. Implementations must order rows by a unique key so that
// offsets are stable between calls.
type pageFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// collectPages requests pageSize rows at increasing offsets until a short page comes back
func collectPages[T any](ctx context.Context, pageSize int, fetch pageFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []T
	for offset := 0; ; offset += pageSize {
		page, err := fetch(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
