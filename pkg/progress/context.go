package progress

import "context"

// Context derives a context that is cancelled when ch is cancelled. When parent ends
// first (for example on SIGINT), ch is cancelled too, so both views agree.
// The returned CancelFunc releases the watcher goroutine and must be called.
func Context(parent context.Context, ch *Channel) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-ch.Done():
			cancel()
		case <-ctx.Done():
			if parent.Err() != nil {
				ch.Cancel()
			}
		}
	}()
	return ctx, cancel
}
