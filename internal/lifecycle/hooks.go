// Package lifecycle runs the process's shutdown hooks.
package lifecycle

import "context"

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Closer adapts a Close method, such as the store's or a Redis client's, to a hook function.
func Closer(close func() error) func(context.Context) error {
	return func(context.Context) error {
		return close()
	}
}
