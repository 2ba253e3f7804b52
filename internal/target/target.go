// Package target defines the automation surface the engine drives and a
// Chrome DevTools implementation of it
package target

import (
	"context"
	"errors"
)

type (
	// Target is a controllable automation surface, typically a browser tab.
	// A Target is owned by exactly one run and is not safe for concurrent
	// use by multiple runs
	Target interface {
		// Navigate loads the given URL
		Navigate(ctx context.Context, url string) error

		// Click clicks the element matched by selector
		Click(ctx context.Context, selector string) error

		// Type replaces the value of the element matched by selector
		Type(ctx context.Context, selector, text string) error

		// Extract returns the text content of the element matched by selector
		Extract(ctx context.Context, selector string) (string, error)

		// WaitFor blocks until the element matched by selector is visible
		WaitFor(ctx context.Context, selector string) error

		// Exists reports whether any element currently matches selector
		Exists(ctx context.Context, selector string) (bool, error)

		// Screenshot captures the current page as a PNG
		Screenshot(ctx context.Context) ([]byte, error)

		// Close releases the target. Calling Close more than once is a no-op
		Close() error
	}

	// Provider acquires Targets for runs
	Provider interface {
		Acquire(ctx context.Context, opts Options) (Target, error)
	}

	// Options configures an acquired Target
	Options struct {
		Label    string
		Headless bool
	}

	// ProviderFunc adapts a function to the Provider interface
	ProviderFunc func(ctx context.Context, opts Options) (Target, error)
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrUnreachable     = errors.New("target unreachable")
	ErrClosed          = errors.New("target closed")
)

// Acquire calls f
func (f ProviderFunc) Acquire(
	ctx context.Context, opts Options,
) (Target, error) {
	return f(ctx, opts)
}

// IsTransient reports whether err may succeed when retried. Cancellation
// and closed targets are final, every other failure is treated as transient
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		return false
	default:
		return true
	}
}
