package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"scenecap/internal/httpapi/handlers"
	"scenecap/internal/httpkit"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/pkg/middleware"
)

type Deps struct {
	Dispatcher     handlers.Dispatcher
	Browser        handlers.BrowserChecker
	Log            *logger.Logger
	AllowedOrigins []string
	// RatePerMinute limits job submissions per client IP. 0 disables it.
	RatePerMinute int
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	h := handlers.New(handlers.Deps{
		Dispatcher: d.Dispatcher,
		Browser:    d.Browser,
		Log:        log,
	})

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- JOBS ----
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.RatePerMinute))

		postJob := middleware.WrapHandler(log, h.PostJob)
		r.Post("/jobs", postJob)
		// ruta legacy del servicio original
		r.Post("/run-puppeteer", postJob)
	})

	return r
}
