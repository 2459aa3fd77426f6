// Package async provides panic-safe goroutine helpers for fire-and-forget
// background work.
//
// SafeGo runs a task in a goroutine with a timeout-bounded context and
// panic recovery, logging failures instead of crashing the process:
//
//	async.SafeGo(ctx, 30*time.Second, "webhook-delivery", func(ctx context.Context) error {
//		return deliver(ctx, payload)
//	})
//
// SafeGoNoError is the same for tasks with nothing to report. The
// webhook dispatcher uses it so a panicking subscriber never takes the
// dispatching request down with it.
package async
