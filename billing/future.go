package billing

import "context"

// future is a single-slot result box. The first set wins; later sets are
// reported as not delivered. It is consumed by exactly one await.
type future[T any] struct {
	ch chan T
}

func newFuture[T any]() *future[T] {
	return &future[T]{ch: make(chan T, 1)}
}

func (f *future[T]) set(v T) bool {
	select {
	case f.ch <- v:
		return true
	default:
		return false
	}
}

func (f *future[T]) await(ctx context.Context) (T, error) {
	select {
	case v := <-f.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type purchasesResult struct {
	result    Result
	purchases []Purchase
}

type detailsResult struct {
	result  Result
	details []ProductDetails
}
