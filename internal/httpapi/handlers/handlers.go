package handlers

import (
	"scenecap/internal/models"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/worker"
)

// Dispatcher accepts jobs for background processing.
type Dispatcher interface {
	Submit(job *models.Job) error
	Stats() worker.Stats
}

// BrowserChecker reports whether a browser can be launched.
type BrowserChecker interface {
	Check() error
}

type Deps struct {
	Dispatcher Dispatcher
	Browser    BrowserChecker
	Log        *logger.Logger
}

type Handler struct {
	dispatcher Dispatcher
	browser    BrowserChecker
	log        *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		dispatcher: d.Dispatcher,
		browser:    d.Browser,
		log:        log.WithComponent("httpapi"),
	}
}
