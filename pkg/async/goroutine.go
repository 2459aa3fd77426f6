package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/formhive/formhive/pkg/observability"
)

var logger = observability.NewLogger("async")

// SafeGo runs fn in a goroutine with a timeout-bounded context and panic
// recovery. Use it instead of a bare `go func()` so a panicking task
// never takes the process down and an abandoned task cannot run forever.
//
//	async.SafeGo(ctx, 30*time.Second, "webhook-delivery", func(ctx context.Context) error {
//	    return deliver(ctx, payload)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for functions with nothing to report.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
