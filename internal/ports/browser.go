package ports

import "context"

// Browser launches isolated page sessions.
type Browser interface {
	// Open starts a browser with a single page. A launch failure is
	// reported as BROWSER_LAUNCH_ERROR.
	Open(ctx context.Context) (Session, error)
}

// Session is one page in one browser process. Close must be safe to call
// more than once; only the first call does any work.
type Session interface {
	// Navigate loads url and returns once the network is quiet.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs expr in the page, discarding its result.
	Evaluate(ctx context.Context, expr string) error
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// OnConsole registers fn for every console message text. fn must not block.
	OnConsole(fn func(text string))
	Close() error
}
