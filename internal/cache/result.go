package cache

import (
	"context"

	"github.com/tablecache/tablecache/internal/storage"
)

// result carries either the value of a table store call or the fault it
// raised.
type result[T any] struct {
	value T
	fault *storage.Fault
}

func (r result[T]) ok() bool {
	return r.fault == nil
}

func call[T any](a *Adapter, op string, key string, fn func(ctx context.Context) (T, error)) result[T] {
	ctx, cancel := a.context()
	defer cancel()

	value, err := fn(ctx)
	if err != nil {
		return result[T]{fault: storage.NewFault(op, a.table, key, err)}
	}
	return result[T]{value: value}
}
