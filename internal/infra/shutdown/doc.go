// Package shutdown coordinates graceful process termination.
//
// Components register named hooks; the handler waits for SIGINT, SIGTERM,
// an explicit Trigger or context cancellation and runs them in reverse
// registration order under a single timeout.
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("http", srv.Shutdown)
//	h.OnShutdown("agent", func(context.Context) error { return a.Close() })
//	return h.Wait(ctx)
package shutdown
