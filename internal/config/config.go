// Package config builds the service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"scenecap/internal/pkg/errors"
)

// Config is built once at startup and passed down explicitly.
type Config struct {
	Port string

	CallbackURL     string
	CallbackTimeout time.Duration

	Browser  BrowserConfig
	Pipeline PipelineConfig

	// MaxConcurrentJobs caps open browser sessions. 0 means unlimited.
	MaxConcurrentJobs int
	// IntakeRatePerMinute limits job submissions per client IP. 0 disables it.
	IntakeRatePerMinute int

	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

// BrowserConfig controls how chromium is launched.
type BrowserConfig struct {
	ExecPath       string
	Headless       bool
	Sandbox        bool
	ExtraFlags     []string
	ViewportWidth  int
	ViewportHeight int
}

// PipelineConfig holds the per-job timings and scene parameters.
type PipelineConfig struct {
	NavMaxAttempts    int
	NavAttemptTimeout time.Duration
	CameraSettleDelay time.Duration
	CameraAngles      []int
	ReadyMarker       string
	// JobTimeout bounds a whole job, readiness wait included. 0 disables it.
	JobTimeout time.Duration
}

// Defaults.
const (
	DefaultPort              = "8080"
	DefaultExecPath          = "/usr/bin/chromium"
	DefaultViewportWidth     = 720
	DefaultViewportHeight    = 800
	DefaultNavMaxAttempts    = 3
	DefaultNavAttemptTimeout = 200 * time.Second
	DefaultCameraSettleDelay = 1250 * time.Millisecond
	DefaultReadyMarker       = "AllAssetsLoaded!"
	DefaultJobTimeout        = 15 * time.Minute
	DefaultCallbackTimeout   = 30 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
)

// DefaultCameraAngles is the capture order used when CAMERA_ANGLES is unset.
var DefaultCameraAngles = []int{7, 5, 8}

// Load reads .env files when present, then the process environment.
func Load() (*Config, error) {
	// .env es opcional; en contenedores todo llega por variables de entorno.
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	c := &Config{
		Port:        FirstEnv(DefaultPort, "PORT", "HTTP_PORT"),
		CallbackURL: Env("CALLBACK_URL", ""),
		Browser: BrowserConfig{
			ExecPath:   FirstEnv(DefaultExecPath, "BROWSER_EXECUTABLE_PATH", "PUPPETEER_EXECUTABLE_PATH"),
			Headless:   BoolEnv("BROWSER_HEADLESS", true),
			Sandbox:    BoolEnv("BROWSER_SANDBOX", false),
			ExtraFlags: ListEnv("BROWSER_EXTRA_FLAGS", nil),
		},
		Pipeline: PipelineConfig{
			ReadyMarker: Env("READY_MARKER", DefaultReadyMarker),
		},
		CORSAllowedOrigins: ListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	var err error
	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"VIEWPORT_WIDTH", &c.Browser.ViewportWidth, DefaultViewportWidth},
		{"VIEWPORT_HEIGHT", &c.Browser.ViewportHeight, DefaultViewportHeight},
		{"NAV_MAX_ATTEMPTS", &c.Pipeline.NavMaxAttempts, DefaultNavMaxAttempts},
		{"MAX_CONCURRENT_JOBS", &c.MaxConcurrentJobs, 0},
		{"INTAKE_RATE_PER_MINUTE", &c.IntakeRatePerMinute, 0},
	}
	for _, i := range ints {
		if *i.dst, err = IntEnv(i.key, i.def); err != nil {
			return nil, invalid(i.key, err)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"NAV_ATTEMPT_TIMEOUT", &c.Pipeline.NavAttemptTimeout, DefaultNavAttemptTimeout},
		{"CAMERA_SETTLE_DELAY", &c.Pipeline.CameraSettleDelay, DefaultCameraSettleDelay},
		{"JOB_TIMEOUT", &c.Pipeline.JobTimeout, DefaultJobTimeout},
		{"CALLBACK_TIMEOUT", &c.CallbackTimeout, DefaultCallbackTimeout},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, DefaultShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = DurationEnv(d.key, d.def); err != nil {
			return nil, invalid(d.key, err)
		}
	}

	c.Pipeline.CameraAngles = append([]int(nil), DefaultCameraAngles...)
	if raw := ListEnv("CAMERA_ANGLES", nil); raw != nil {
		c.Pipeline.CameraAngles = c.Pipeline.CameraAngles[:0]
		for _, s := range raw {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, invalid("CAMERA_ANGLES", err)
			}
			c.Pipeline.CameraAngles = append(c.Pipeline.CameraAngles, n)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if c.CallbackURL == "" {
		return errors.ValidationField("CALLBACK_URL", "missing env: CALLBACK_URL")
	}
	u, err := url.Parse(c.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.ValidationField("CALLBACK_URL", "CALLBACK_URL must be an absolute http(s) URL")
	}
	switch {
	case c.Pipeline.NavMaxAttempts < 1:
		return errors.ValidationField("NAV_MAX_ATTEMPTS", "NAV_MAX_ATTEMPTS must be at least 1")
	case c.Pipeline.NavAttemptTimeout <= 0:
		return errors.ValidationField("NAV_ATTEMPT_TIMEOUT", "NAV_ATTEMPT_TIMEOUT must be positive")
	case c.Pipeline.CameraSettleDelay < 0:
		return errors.ValidationField("CAMERA_SETTLE_DELAY", "CAMERA_SETTLE_DELAY must not be negative")
	case len(c.Pipeline.CameraAngles) == 0:
		return errors.ValidationField("CAMERA_ANGLES", "CAMERA_ANGLES must list at least one index")
	case c.Pipeline.JobTimeout < 0:
		return errors.ValidationField("JOB_TIMEOUT", "JOB_TIMEOUT must not be negative")
	case c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0:
		return errors.ValidationField("VIEWPORT_WIDTH", "viewport dimensions must be positive")
	case c.MaxConcurrentJobs < 0:
		return errors.ValidationField("MAX_CONCURRENT_JOBS", "MAX_CONCURRENT_JOBS must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func invalid(key string, err error) error {
	return errors.WrapWithCode(err, errors.CodeValidation, "config.load", fmt.Sprintf("invalid %s", key)).
		WithField("field", key)
}
