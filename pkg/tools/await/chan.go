package await

import "context"

func FromChan[T any](ch <-chan T) Awaiter {
	return &recvAwaiter[T]{ch: ch}
}

type recvAwaiter[T any] struct {
	val T
	ok  bool
	ch  <-chan T
}

func (a *recvAwaiter[T]) Await(ctx context.Context) (waited bool) {
	select {
	case <-ctx.Done():
		return false
	case a.val, a.ok = <-a.ch:
		return a.ok
	}
}

func (a *recvAwaiter[T]) Value() (any, bool) {
	return a.val, a.ok
}
