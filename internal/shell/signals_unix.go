//go:build unix

package shell

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// HandleSignals maps job-control signals onto the lifecycle until ctx
// ends: SIGTSTP suspends (saving state first) and SIGCONT resumes. With
// stop set, the process then really stops itself with SIGSTOP, so a
// terminal ^Z still parks the host.
func (c *Context) HandleSignals(ctx context.Context, stop bool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTSTP, syscall.SIGCONT)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTSTP:
				if _, err := c.Suspend(ctx); err != nil {
					c.Logger.Warn("suspend save failed", "error", err)
				}
				if stop {
					syscall.Kill(os.Getpid(), syscall.SIGSTOP)
				}
			case syscall.SIGCONT:
				c.Resume(ctx)
			}
		}
	}
}
