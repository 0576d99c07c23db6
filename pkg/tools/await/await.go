package await

import "context"

// Awaiter is a single blocking wait that can be interrupted by context.
type Awaiter interface {
	// Await blocks until the awaited event happens or ctx is done.
	// It reports whether the event was actually waited for.
	Await(ctx context.Context) (waited bool)

	// Value returns the awaited value, if any.
	Value() (any, bool)
}
