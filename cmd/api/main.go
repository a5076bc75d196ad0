package main

import (
	"context"
	"net/http"
	"time"

	"scenecap/internal/adapters/browser/chromium"
	"scenecap/internal/adapters/callback/httpcallback"
	"scenecap/internal/config"
	"scenecap/internal/httpapi"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/pkg/shutdown"
	"scenecap/internal/worker"
	"scenecap/internal/worker/processor"
)

func main() {
	// Config first: Load also reads .env, which may carry LOG_* settings.
	cfg, cfgErr := config.Load()

	log := logger.NewDefault()
	if cfgErr != nil {
		log.LogFatal("invalid configuration", cfgErr)
	}

	log.Info("starting scenecap",
		"port", cfg.Port,
		"browser", cfg.Browser.ExecPath,
		"max_concurrent_jobs", cfg.MaxConcurrentJobs,
		"job_timeout", cfg.Pipeline.JobTimeout.String(),
	)

	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	browser := chromium.New(chromium.Options{
		ExecPath:   cfg.Browser.ExecPath,
		Headless:   cfg.Browser.Headless,
		Sandbox:    cfg.Browser.Sandbox,
		ExtraFlags: cfg.Browser.ExtraFlags,
		Width:      cfg.Browser.ViewportWidth,
		Height:     cfg.Browser.ViewportHeight,
	}, log)
	if err := browser.Check(); err != nil {
		// no es fatal: el health check lo reporta y cada job falla con BROWSER_LAUNCH_ERROR
		log.Warn("browser executable check failed", "error", err.Error())
	}

	proc := processor.New(processor.Deps{
		Browser:       browser,
		Notifier:      httpcallback.New(cfg.CallbackURL, cfg.CallbackTimeout),
		Pipeline:      cfg.Pipeline,
		NotifyTimeout: cfg.CallbackTimeout,
		Log:           log,
	})

	dispatcher := worker.NewDispatcher(proc, cfg.MaxConcurrentJobs, log)
	shutdownMgr.Register("dispatcher", dispatcher.Drain)

	router := httpapi.NewRouter(httpapi.Deps{
		Dispatcher:     dispatcher,
		Browser:        browser,
		Log:            log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RatePerMinute:  cfg.IntakeRatePerMinute,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Registrado despues del dispatcher: se apaga primero.
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait(context.Background())
}
