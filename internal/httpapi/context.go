package httpapi

import "context"

// joinContexts returns a context that is canceled when either a or b is
// done, so server shutdown cancels in-flight work alongside client
// disconnects. The returned cancel func must be called to release the
// goroutine when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}
