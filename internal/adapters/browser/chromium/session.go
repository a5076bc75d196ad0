package chromium

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"scenecap/internal/pkg/logger"
	"scenecap/internal/ports"
)

// Session is a single chromium tab. All methods are safe for concurrent use.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	log       *logger.Logger
	net       *inflight
	idleQuiet time.Duration

	mu       sync.Mutex
	console  []func(string)
	closed   bool
	closeErr error
	once     sync.Once
}

var _ ports.Session = (*Session)(nil)

func newSession(tabCtx context.Context, cancelTab, cancelAlloc context.CancelFunc, o Options, log *logger.Logger) *Session {
	return &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		log:         log,
		net:         newInflight(o.IdleMaxInflight),
		idleQuiet:   o.IdleQuiet,
	}
}

// Navigate loads url, then waits for network quiescence. ctx bounds both.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.net.reset()
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	if err := s.net.wait(ctx, s.idleQuiet); err != nil {
		return err
	}
	return nil
}

// Evaluate runs expr in the page and discards the result.
func (s *Session) Evaluate(ctx context.Context, expr string) error {
	var res *runtime.RemoteObject
	return s.run(ctx, chromedp.Evaluate(expr, &res))
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// OnConsole registers fn for every console API call in the page.
func (s *Session) OnConsole(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, fn)
}

// Close shuts the browser down. Only the first call does any work.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err := chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		if err != nil && !stderrors.Is(err, context.Canceled) {
			s.closeErr = err
		}
		s.log.Debug("browser closed")
	})
	return s.closeErr
}

// start allocates the browser and tab. chromedp binds their lifetime to the
// context of the first Run, so it must be the tab context itself; ctx can only
// abort the launch by closing the session.
func (s *Session) start(ctx context.Context, actions ...chromedp.Action) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	err := chromedp.Run(s.ctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// run executes actions on an already started tab, aborting when ctx ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		// reportar la causa real (deadline del intento o del job)
		return ctx.Err()
	}
	return err
}

// handleEvent runs on chromedp's event loop and must not block.
func (s *Session) handleEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.net.started(e.RequestID)
	case *network.EventLoadingFinished:
		s.net.finished(e.RequestID)
	case *network.EventLoadingFailed:
		s.net.finished(e.RequestID)
	case *runtime.EventConsoleAPICalled:
		text := consoleText(e.Args)
		s.log.Debug("page console", "type", string(e.Type), "text", text)
		s.mu.Lock()
		fns := append([]func(string){}, s.console...)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		for _, fn := range fns {
			fn(text)
		}
	case *page.EventFrameNavigated:
		if e.Frame != nil {
			s.log.Debug("frame navigated", "url", e.Frame.URL)
		}
	case *page.EventFrameDetached:
		s.log.Debug("frame detached", "frame_id", string(e.FrameID))
	}
}

// consoleText joins console arguments the way DevTools prints them.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		switch {
		case len(a.Value) > 0:
			var str string
			if err := json.Unmarshal([]byte(a.Value), &str); err == nil {
				parts = append(parts, str)
			} else {
				parts = append(parts, string(a.Value))
			}
		case a.UnserializableValue != "":
			parts = append(parts, string(a.UnserializableValue))
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}
