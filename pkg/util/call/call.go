package call

import "context"

// Call is one deferred step of a startup or teardown sequence
type Call func(context.Context) error

// Perform runs calls in order and stops on the first error. A context that
// is already done stops the sequence before the next call starts
func Perform(ctx context.Context, calls ...Call) error {
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := call(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Plain adapts a function that needs no context
func Plain(fn func() error) Call {
	return func(context.Context) error {
		return fn()
	}
}
