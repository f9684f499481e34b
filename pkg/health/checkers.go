package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) Check {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is anything that can verify its connection, such as a pgx pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when the ping fails.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}
