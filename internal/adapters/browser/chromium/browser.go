// Package chromium runs scene pages in a headless chromium driven by chromedp.
package chromium

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"scenecap/internal/pkg/errors"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/ports"
)

// Options configures every browser launched by a Browser.
type Options struct {
	ExecPath   string
	Headless   bool
	Sandbox    bool
	ExtraFlags []string
	Width      int
	Height     int

	// Network quiescence: at most IdleMaxInflight requests for IdleQuiet.
	IdleMaxInflight int
	IdleQuiet       time.Duration
}

// DefaultOptions matches the capture service defaults.
func DefaultOptions() Options {
	return Options{
		ExecPath:        "/usr/bin/chromium",
		Headless:        true,
		Width:           720,
		Height:          800,
		IdleMaxInflight: 2,
		IdleQuiet:       500 * time.Millisecond,
	}
}

// Browser opens one chromium process per session.
type Browser struct {
	opts Options
	log  *logger.Logger
}

var _ ports.Browser = (*Browser)(nil)

func New(opts Options, log *logger.Logger) *Browser {
	if log == nil {
		log = logger.NewNop()
	}
	d := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = d.Width
	}
	if opts.Height <= 0 {
		opts.Height = d.Height
	}
	if opts.IdleMaxInflight <= 0 {
		opts.IdleMaxInflight = d.IdleMaxInflight
	}
	if opts.IdleQuiet <= 0 {
		opts.IdleQuiet = d.IdleQuiet
	}
	return &Browser{opts: opts, log: log.WithComponent("browser")}
}

// Open launches chromium with a single tab sized to the configured viewport.
func (b *Browser) Open(ctx context.Context) (ports.Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}
	flags := launchFlags(b.opts)
	for name, value := range flags {
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}

	// El proceso vive hasta Close, no hasta que termine ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(b.chromeLogf),
		chromedp.WithErrorf(b.chromeLogf),
	)

	s := newSession(tabCtx, tabCancel, allocCancel, b.opts, b.log)

	// Los listeners se registran antes del primer Run para no perder eventos.
	chromedp.ListenTarget(tabCtx, s.handleEvent)

	start := time.Now()
	if err := s.start(ctx,
		network.Enable(),
		chromedp.EmulateViewport(int64(b.opts.Width), int64(b.opts.Height)),
	); err != nil {
		_ = s.Close()
		return nil, errors.WrapWithCode(err, errors.CodeBrowserLaunch, "browser.open", "launch browser").
			WithField("exec_path", b.opts.ExecPath)
	}

	b.log.Debug("browser launched",
		"exec_path", b.opts.ExecPath,
		"flags", flagNames(flags),
		"viewport", fmt.Sprintf("%dx%d", b.opts.Width, b.opts.Height),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return s, nil
}

// Check verifies that the configured executable exists and is runnable.
func (b *Browser) Check() error {
	path := b.opts.ExecPath
	if path == "" {
		return errors.New(errors.CodeUnavailable, "browser executable not configured")
	}
	if !filepath.IsAbs(path) {
		if _, err := exec.LookPath(path); err != nil {
			return errors.WrapWithCode(err, errors.CodeUnavailable, "browser.check", "browser executable not found")
		}
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "browser.check", "browser executable not found")
	}
	if fi.IsDir() || fi.Mode()&0o111 == 0 {
		return errors.Newf(errors.CodeUnavailable, "browser executable %s is not runnable", path)
	}
	return nil
}

func (b *Browser) chromeLogf(format string, args ...any) {
	b.log.Debug("chromedp", "detail", fmt.Sprintf(format, args...))
}

// launchFlags returns the chromium switches layered on top of chromedp's defaults.
func launchFlags(o Options) map[string]any {
	flags := map[string]any{
		"headless":              o.Headless,
		"disable-dev-shm-usage": true,
		"no-first-run":          true,
		"disable-gpu":           true,
	}
	if !o.Sandbox {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
		flags["no-zygote"] = true
		flags["single-process"] = true
	}
	for _, f := range o.ExtraFlags {
		f = strings.TrimLeft(strings.TrimSpace(f), "-")
		if f == "" {
			continue
		}
		if name, value, ok := strings.Cut(f, "="); ok {
			flags[name] = value
		} else {
			flags[f] = true
		}
	}
	return flags
}

// flagNames is used for logging and tests.
func flagNames(flags map[string]any) []string {
	names := make([]string, 0, len(flags))
	for k, v := range flags {
		if b, ok := v.(bool); ok && !b {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
