package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"scenecap/internal/config"
	"scenecap/internal/models"
	"scenecap/internal/pkg/errors"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/ports"
)

// maxErrorLen bounds the error text sent in the callback.
const maxErrorLen = 2000

type Deps struct {
	Browser       ports.Browser
	Notifier      ports.Notifier
	Pipeline      config.PipelineConfig
	NotifyTimeout time.Duration
	Log           *logger.Logger
}

type Processor struct {
	browser       ports.Browser
	notifier      ports.Notifier
	readyMarker   string
	jobTimeout    time.Duration
	notifyTimeout time.Duration
	log           *logger.Logger

	// Componentes internos
	navigator *Navigator
	sequencer *Sequencer
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	pc := d.Pipeline
	if pc.ReadyMarker == "" {
		pc.ReadyMarker = config.DefaultReadyMarker
	}
	if len(pc.CameraAngles) == 0 {
		pc.CameraAngles = config.DefaultCameraAngles
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = config.DefaultCallbackTimeout
	}

	return &Processor{
		browser:       d.Browser,
		notifier:      d.Notifier,
		readyMarker:   pc.ReadyMarker,
		jobTimeout:    pc.JobTimeout,
		notifyTimeout: d.NotifyTimeout,
		log:           log,
		navigator:     NewNavigator(pc.NavMaxAttempts, pc.NavAttemptTimeout, log),
		sequencer:     NewSequencer(pc.CameraAngles, pc.CameraSettleDelay, log),
	}
}

// ProcessJob orquesta el flujo completo del job. It never returns an error and
// never panics: every outcome ends in exactly one callback, and a session
// that was opened is closed exactly once, after the callback.
func (p *Processor) ProcessJob(ctx context.Context, job *models.Job) {
	ctx = logger.ContextWithJobID(ctx, job.ID)
	log := p.log.FromContext(ctx)
	job.StartedAt = time.Now().UTC()

	var sess ports.Session

	// Los defers corren en orden inverso: primero notificar, despues cerrar.
	defer p.teardown(log, job, &sess)
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			p.fail(log, job, errors.Newf(errors.CodeInternal, "panic: %v", r))
		}
		p.notify(ctx, log, job)
	}()

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	log.Info("job started", "url", job.URL, "skus", len(job.OrderSpecifications))

	screenshots, err := p.run(ctx, log, job, &sess)
	if err != nil {
		p.fail(log, job, err)
		return
	}
	job.Finish(screenshots)
	log.Info("job finished",
		"screenshots", len(screenshots),
		"duration_ms", time.Since(job.StartedAt).Milliseconds(),
	)
}

func (p *Processor) run(ctx context.Context, log *logger.Logger, job *models.Job, sessp *ports.Session) ([]string, error) {
	// 1. Abrir navegador
	sess, err := p.browser.Open(ctx)
	if err != nil {
		return nil, withCode(err, errors.CodeBrowserLaunch, "job.open_session", "browser launch failed")
	}
	*sessp = sess
	p.advance(log, job, models.StateSessionOpen)

	// 2. Suscribirse a la consola antes de navegar
	gate := NewReadinessGate(p.readyMarker)
	gate.Attach(sess)

	// 3. Navegar con reintentos
	p.advance(log, job, models.StateNavigating)
	if err := p.navigator.NavigateWithRetries(ctx, sess, job.URL); err != nil {
		return nil, err
	}

	// 4. Esperar a que la escena cargue sus assets
	p.advance(log, job, models.StateAwaitingReadiness)
	log.Debug("waiting for readiness marker", "marker", p.readyMarker)
	if err := gate.Wait(ctx); err != nil {
		return nil, err
	}
	log.Debug("readiness marker received")

	// 5. Configurar productos
	p.advance(log, job, models.StateSequencingCommands)
	if err := p.sequencer.Configure(ctx, sess, job.OrderSpecifications); err != nil {
		return nil, err
	}

	// 6. Capturas por angulo de camara
	p.advance(log, job, models.StateCapturing)
	return p.sequencer.Capture(ctx, sess)
}

func (p *Processor) advance(log *logger.Logger, job *models.Job, to models.JobState) {
	from := job.State
	if err := job.Advance(to); err != nil {
		log.Warn("unexpected job state change", "from", string(from), "to", string(to))
		job.State = to
		return
	}
	log.Debug("job state changed", "from", string(from), "to", string(to))
}

func (p *Processor) fail(log *logger.Logger, job *models.Job, cause error) {
	if job.Terminal() {
		return
	}
	from := job.State

	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}

	var coded *errors.Error
	if errors.As(cause, &coded) {
		log.Error("job failed",
			"code", string(coded.Code),
			"op", coded.Op,
			"message", coded.Message,
			"error", msg,
			"stack", coded.StackTrace(),
		)
	} else {
		log.Error("job failed", "error", msg)
	}

	job.Fail(msg)
	log.Debug("job state changed", "from", string(from), "to", string(models.StateFailed))
}

// notify sends the single callback. Its context is detached from the job
// deadline so a timed out job still reports.
func (p *Processor) notify(ctx context.Context, log *logger.Logger, job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("callback panicked", "panic", fmt.Sprint(r))
		}
	}()

	if !job.Terminal() {
		p.fail(log, job, errors.New(errors.CodeInternal, "job ended without an outcome"))
	}
	p.advance(log, job, models.StateNotifying)

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.notifyTimeout)
	defer cancel()

	payload := ports.CallbackPayload{
		JobID:       job.ID,
		Status:      string(job.Status),
		Screenshots: job.Screenshots,
		Error:       job.Error,
	}
	if err := p.notifier.Notify(nctx, payload); err != nil {
		log.Error("callback failed",
			"code", string(errors.GetCode(err)),
			"error", err.Error(),
			"status", payload.Status,
		)
		return
	}
	log.Info("callback delivered", "status", payload.Status)
}

func (p *Processor) teardown(log *logger.Logger, job *models.Job, sessp *ports.Session) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("browser close panicked", "panic", fmt.Sprint(r))
		}
		p.advance(log, job, models.StateClosed)
	}()

	if *sessp == nil {
		return
	}
	if err := (*sessp).Close(); err != nil {
		log.Warn("browser close failed", "error", err.Error())
	}
}

// withCode keeps an existing job code and assigns code to anything else.
func withCode(err error, code errors.Code, op, msg string) error {
	if errors.GetCode(err) != errors.CodeInternal {
		return errors.Wrap(err, op, msg)
	}
	return errors.WrapWithCode(err, code, op, msg)
}
