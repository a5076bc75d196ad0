package processor

import (
	"context"
	"encoding/base64"
	"time"

	scene "scenecap/internal/contracts/scene/v0"
	"scenecap/internal/models"
	"scenecap/internal/pkg/errors"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/ports"
)

// Sequencer drives the scene: product setup first, then one screenshot per camera.
type Sequencer struct {
	Angles      []int
	SettleDelay time.Duration
	log         *logger.Logger
}

func NewSequencer(angles []int, settle time.Duration, log *logger.Logger) *Sequencer {
	return &Sequencer{Angles: angles, SettleDelay: settle, log: log}
}

// Configure posts one SKU_details command per spec, in order. Nothing is
// acknowledged by the page.
func (q *Sequencer) Configure(ctx context.Context, s ports.Session, specs []models.OrderSpecification) error {
	for i, spec := range specs {
		if err := q.post(ctx, s, scene.NewSKUDetails(spec.SKU, spec.Properties)); err != nil {
			return errors.WrapWithCode(err, errors.CodeCommandInjection, "job.configure", "send SKU_details").
				WithField("sku", spec.SKU).
				WithField("index", i)
		}
	}
	q.log.FromContext(ctx).Debug("scene configured", "skus", len(specs))
	return nil
}

// Capture moves the camera through Angles and returns base64 PNGs in the same
// order. Any failure discards what was captured so far.
func (q *Sequencer) Capture(ctx context.Context, s ports.Session) ([]string, error) {
	shots := make([]string, 0, len(q.Angles))
	for _, idx := range q.Angles {
		if err := q.post(ctx, s, scene.NewCameraChange(idx)); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeCommandInjection, "job.camera", "send CameraChange").
				WithField("camera", idx)
		}

		// esperar a que la camara termine la transicion
		if err := sleep(ctx, q.SettleDelay); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeCapture, "job.capture", "camera settle interrupted").
				WithField("camera", idx)
		}

		png, err := s.Screenshot(ctx)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeCapture, "job.capture", "screenshot failed").
				WithField("camera", idx)
		}
		shots = append(shots, base64.StdEncoding.EncodeToString(png))
		q.log.FromContext(ctx).Debug("screenshot taken", "camera", idx, "bytes", len(png))
	}
	return shots, nil
}

// Run is Configure followed by Capture.
func (q *Sequencer) Run(ctx context.Context, s ports.Session, specs []models.OrderSpecification) ([]string, error) {
	if err := q.Configure(ctx, s, specs); err != nil {
		return nil, err
	}
	return q.Capture(ctx, s)
}

func (q *Sequencer) post(ctx context.Context, s ports.Session, cmd scene.Command) error {
	expr, err := scene.PostMessageExpr(cmd)
	if err != nil {
		return err
	}
	return s.Evaluate(ctx, expr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
