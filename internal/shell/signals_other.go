//go:build !unix

package shell

import "context"

// HandleSignals blocks until ctx ends. There is no job control to map
// on this platform.
func (c *Context) HandleSignals(ctx context.Context, stop bool) {
	<-ctx.Done()
}
