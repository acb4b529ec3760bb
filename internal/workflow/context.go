package workflow

import "context"

// WithEitherDone returns a context derived from a that is also cancelled
// when b is done. Values come from a only.
func WithEitherDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() {
		cancel(context.Cause(b))
	})

	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
