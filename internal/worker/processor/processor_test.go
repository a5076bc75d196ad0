package processor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenecap/internal/models"
	"scenecap/internal/pkg/errors"
)

func newJob(specs ...models.OrderSpecification) *models.Job {
	return models.NewJob("job-1", "http://scene.local/configurator", specs)
}

func TestProcessJobSingleSKUWithFont(t *testing.T) {
	h := newHarness(testPipeline(), nil)
	job := newJob(models.OrderSpecification{SKU: "A1", Properties: map[string]any{"font": "Arial"}})

	h.proc.ProcessJob(context.Background(), job)

	want := []string{
		"navigate",
		`eval:window.postMessage({"type":"SKU_details","sku":"A1","font":"Arial"}, "*")`,
		`eval:window.postMessage({"type":"CameraChange","index":7}, "*")`,
		"screenshot",
		`eval:window.postMessage({"type":"CameraChange","index":5}, "*")`,
		"screenshot",
		`eval:window.postMessage({"type":"CameraChange","index":8}, "*")`,
		"screenshot",
		"notify",
		"close",
	}
	assert.Equal(t, want, h.rec.list())

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "job-1", sent[0].JobID)
	assert.Equal(t, "finished", sent[0].Status)
	assert.Empty(t, sent[0].Error)
	require.Len(t, sent[0].Screenshots, 3)
	for i, shot := range sent[0].Screenshots {
		raw, err := base64.StdEncoding.DecodeString(shot)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("png-%d", i+1), string(raw))
	}

	assert.EqualValues(t, 1, h.sess.closes.Load())
	assert.Equal(t, models.StatusFinished, job.Status)
	assert.Equal(t, models.StateClosed, job.State)
}

func TestProcessJobSendsAllSKUsBeforeCameraMoves(t *testing.T) {
	h := newHarness(testPipeline(), nil)
	job := newJob(
		models.OrderSpecification{SKU: "A1"},
		models.OrderSpecification{SKU: "B2", Properties: map[string]any{"engravingText": "Hi", "color": "red"}},
	)

	h.proc.ProcessJob(context.Background(), job)

	var evals []string
	for _, c := range h.rec.list() {
		if strings.HasPrefix(c, "eval:") {
			evals = append(evals, c)
		}
	}
	require.Len(t, evals, 5)
	assert.Contains(t, evals[0], `"sku":"A1"`)
	assert.Contains(t, evals[1], `"sku":"B2","engravingText":"Hi"`)
	assert.NotContains(t, evals[1], "color")
	for _, e := range evals[2:] {
		assert.Contains(t, e, "CameraChange")
	}
}

func TestProcessJobEmptySpecifications(t *testing.T) {
	h := newHarness(testPipeline(), nil)

	h.proc.ProcessJob(context.Background(), newJob())

	assert.Equal(t, 0, h.rec.count("eval:window.postMessage({\"type\":\"SKU_details\""))
	assert.Equal(t, 3, h.rec.count("screenshot"))
	require.Len(t, h.notifier.sent(), 1)
	assert.Equal(t, "finished", h.notifier.sent()[0].Status)
}

func TestNoSceneCommandBeforeReadiness(t *testing.T) {
	h := newHarness(testPipeline(), func(h *harness) {
		h.sess.markerDelay = 100 * time.Millisecond
	})

	h.proc.ProcessJob(context.Background(), newJob(models.OrderSpecification{SKU: "A1"}))

	assert.False(t, h.sess.evalEarly.Load(), "a command was sent before the readiness marker")
	assert.Equal(t, "finished", h.notifier.sent()[0].Status)
}

func TestReadinessMarkerInsideLongerLine(t *testing.T) {
	h := newHarness(testPipeline(), func(h *harness) {
		h.sess.marker = "[scene] AllAssetsLoaded! in 812ms"
	})

	h.proc.ProcessJob(context.Background(), newJob())

	assert.Equal(t, "finished", h.notifier.sent()[0].Status)
}

func TestNavigationRetries(t *testing.T) {
	t.Run("two failures then success", func(t *testing.T) {
		h := newHarness(testPipeline(), func(h *harness) {
			h.sess.navErrs = []error{fmt.Errorf("timeout 1"), fmt.Errorf("timeout 2")}
		})

		h.proc.ProcessJob(context.Background(), newJob(models.OrderSpecification{SKU: "A1"}))

		assert.Equal(t, 3, h.rec.count("navigate"))
		assert.Equal(t, "finished", h.notifier.sent()[0].Status)
		assert.EqualValues(t, 1, h.sess.closes.Load())
	})

	t.Run("three failures fail the job", func(t *testing.T) {
		h := newHarness(testPipeline(), func(h *harness) {
			h.sess.navErrs = []error{fmt.Errorf("t1"), fmt.Errorf("t2"), fmt.Errorf("net::ERR_CONNECTION_REFUSED")}
		})

		job := newJob(models.OrderSpecification{SKU: "A1"})
		h.proc.ProcessJob(context.Background(), job)

		assert.Equal(t, 3, h.rec.count("navigate"))
		assert.Equal(t, 0, h.rec.count("eval:"))
		sent := h.notifier.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "failed", sent[0].Status)
		assert.Contains(t, sent[0].Error, "NAVIGATION_ERROR")
		assert.Contains(t, sent[0].Error, "ERR_CONNECTION_REFUSED")
		assert.Nil(t, sent[0].Screenshots)
		assert.EqualValues(t, 1, h.sess.closes.Load())
		assert.Equal(t, []string{"navigate", "navigate", "navigate", "notify", "close"}, h.rec.list())
	})

	t.Run("per attempt timeout", func(t *testing.T) {
		pc := testPipeline()
		pc.NavAttemptTimeout = 20 * time.Millisecond
		h := newHarness(pc, func(h *harness) { h.sess.navBlock = true })

		h.proc.ProcessJob(context.Background(), newJob())

		assert.Equal(t, 3, h.rec.count("navigate"))
		assert.Contains(t, h.notifier.sent()[0].Error, "deadline exceeded")
	})
}

func TestBrowserLaunchFailure(t *testing.T) {
	h := newHarness(testPipeline(), func(h *harness) {
		h.browser.openErr = fmt.Errorf("exec: chromium not found")
	})

	job := newJob()
	h.proc.ProcessJob(context.Background(), job)

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "failed", sent[0].Status)
	assert.Contains(t, sent[0].Error, "BROWSER_LAUNCH_ERROR")
	assert.EqualValues(t, 0, h.sess.closes.Load())
	assert.Equal(t, []string{"notify"}, h.rec.list())
	assert.Equal(t, models.StateClosed, job.State)
}

func TestReadinessTimeoutStillNotifies(t *testing.T) {
	pc := testPipeline()
	pc.JobTimeout = 50 * time.Millisecond
	h := newHarness(pc, func(h *harness) { h.sess.marker = "" })

	h.proc.ProcessJob(context.Background(), newJob())

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "failed", sent[0].Status)
	assert.Contains(t, sent[0].Error, "READINESS_ERROR")
	assert.NoError(t, h.notifier.ctxErrs[0], "callback context must outlive the job deadline")
	assert.EqualValues(t, 1, h.sess.closes.Load())
}

func TestCommandAndCaptureFailures(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(s *fakeSession)
		code  errors.Code
		shots int
	}{
		{"evaluate fails", func(s *fakeSession) { s.evalErr = fmt.Errorf("Execution context was destroyed") }, errors.CodeCommandInjection, 0},
		{"second screenshot fails", func(s *fakeSession) { s.shotErrAt = 2 }, errors.CodeCapture, 2},
		{"screenshot panics", func(s *fakeSession) { s.shotPanic = true }, errors.CodeInternal, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(testPipeline(), func(h *harness) { tt.tweak(h.sess) })

			job := newJob(models.OrderSpecification{SKU: "A1"})
			require.NotPanics(t, func() { h.proc.ProcessJob(context.Background(), job) })

			sent := h.notifier.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, "failed", sent[0].Status)
			assert.Contains(t, sent[0].Error, string(tt.code))
			assert.Nil(t, sent[0].Screenshots, "partial screenshots must be discarded")
			assert.Equal(t, tt.shots, h.rec.count("screenshot"))
			assert.EqualValues(t, 1, h.sess.closes.Load())
			assert.Equal(t, "close", h.rec.list()[len(h.rec.list())-1])
		})
	}
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	h := newHarness(testPipeline(), func(h *harness) {
		h.notifier.err = errors.New(errors.CodeNotification, "callback http 500")
	})

	job := newJob()
	require.NotPanics(t, func() { h.proc.ProcessJob(context.Background(), job) })

	assert.Len(t, h.notifier.sent(), 1)
	assert.EqualValues(t, 1, h.sess.closes.Load())
	assert.Equal(t, models.StatusFinished, job.Status)
}

func TestErrorTextIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 5000)
	h := newHarness(testPipeline(), func(h *harness) {
		h.sess.navErrs = []error{fmt.Errorf("%s", long), fmt.Errorf("%s", long), fmt.Errorf("%s", long)}
	})

	h.proc.ProcessJob(context.Background(), newJob())

	assert.Len(t, h.notifier.sent()[0].Error, maxErrorLen)
}

func TestCallbackPayloadShape(t *testing.T) {
	h := newHarness(testPipeline(), nil)
	h.proc.ProcessJob(context.Background(), newJob())

	b, err := json.Marshal(h.notifier.sent()[0])
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.ElementsMatch(t, []string{"jobId", "status", "screenshots"}, keys(m))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
