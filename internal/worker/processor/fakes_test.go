package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scenecap/internal/config"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/ports"
)

// recorder keeps the cross-component call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.list() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type fakeSession struct {
	rec *recorder

	// navErrs[i] is returned by attempt i+1; attempts past the slice succeed.
	navErrs []error
	// marker is printed to the console after a successful navigation.
	marker      string
	markerDelay time.Duration
	// navBlock makes Navigate wait for ctx instead of returning.
	navBlock bool

	evalErr   error
	shotErrAt int // 1-based, 0 = never
	shotPanic bool

	mu         sync.Mutex
	console    []func(string)
	navCalls   int
	shots      int
	markerSent atomic.Bool
	evalEarly  atomic.Bool
	closes     atomic.Int32
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.navCalls++
	n := s.navCalls
	s.mu.Unlock()
	s.rec.add("navigate")

	if s.navBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	if n <= len(s.navErrs) && s.navErrs[n-1] != nil {
		return s.navErrs[n-1]
	}
	if s.marker != "" {
		if s.markerDelay > 0 {
			go func() {
				time.Sleep(s.markerDelay)
				s.emit(s.marker)
			}()
		} else {
			s.emit(s.marker)
		}
	}
	return nil
}

func (s *fakeSession) emit(text string) {
	s.markerSent.Store(true)
	s.mu.Lock()
	fns := append([]func(string){}, s.console...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(text)
	}
}

func (s *fakeSession) Evaluate(ctx context.Context, expr string) error {
	if !s.markerSent.Load() {
		s.evalEarly.Store(true)
	}
	s.rec.add("eval:" + expr)
	return s.evalErr
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	s.shots++
	n := s.shots
	s.mu.Unlock()
	s.rec.add("screenshot")

	if s.shotPanic {
		panic("renderer crashed")
	}
	if s.shotErrAt == n {
		return nil, fmt.Errorf("capture %d failed", n)
	}
	return []byte(fmt.Sprintf("png-%d", n)), nil
}

func (s *fakeSession) OnConsole(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, fn)
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.rec.add("close")
	return nil
}

type fakeBrowser struct {
	sess    *fakeSession
	openErr error
	opens   atomic.Int32
}

func (b *fakeBrowser) Open(ctx context.Context) (ports.Session, error) {
	b.opens.Add(1)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.sess, nil
}

type fakeNotifier struct {
	rec      *recorder
	err      error
	mu       sync.Mutex
	payloads []ports.CallbackPayload
	ctxErrs  []error
}

func (n *fakeNotifier) Notify(ctx context.Context, p ports.CallbackPayload) error {
	n.mu.Lock()
	n.payloads = append(n.payloads, p)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	n.mu.Unlock()
	n.rec.add("notify")
	return n.err
}

func (n *fakeNotifier) sent() []ports.CallbackPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.CallbackPayload(nil), n.payloads...)
}

// testPipeline uses short timings so the whole suite stays fast.
func testPipeline() config.PipelineConfig {
	return config.PipelineConfig{
		NavMaxAttempts:    3,
		NavAttemptTimeout: time.Second,
		CameraSettleDelay: time.Millisecond,
		CameraAngles:      []int{7, 5, 8},
		ReadyMarker:       "AllAssetsLoaded!",
		JobTimeout:        2 * time.Second,
	}
}

type harness struct {
	rec      *recorder
	sess     *fakeSession
	browser  *fakeBrowser
	notifier *fakeNotifier
	proc     *Processor
}

func newHarness(pc config.PipelineConfig, tweak func(h *harness)) *harness {
	rec := &recorder{}
	sess := &fakeSession{rec: rec, marker: "AllAssetsLoaded!"}
	h := &harness{
		rec:      rec,
		sess:     sess,
		browser:  &fakeBrowser{sess: sess},
		notifier: &fakeNotifier{rec: rec},
	}
	if tweak != nil {
		tweak(h)
	}
	h.proc = New(Deps{
		Browser:       h.browser,
		Notifier:      h.notifier,
		Pipeline:      pc,
		NotifyTimeout: time.Second,
		Log:           logger.NewNop(),
	})
	return h
}
