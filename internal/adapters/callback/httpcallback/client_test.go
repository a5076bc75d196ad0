package httpcallback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenecap/internal/pkg/errors"
	"scenecap/internal/ports"
)

func TestNotifyPostsPayload(t *testing.T) {
	var got map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Notify(context.Background(), ports.CallbackPayload{
		JobID:       "job-1",
		Status:      "finished",
		Screenshots: []string{"a", "b", "c"},
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "job-1", got["jobId"])
	assert.Equal(t, "finished", got["status"])
	assert.Len(t, got["screenshots"], 3)
	assert.NotContains(t, got, "error")
}

func TestNotifyFailedPayloadOmitsScreenshots(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).Notify(context.Background(), ports.CallbackPayload{
		JobID:  "job-2",
		Status: "failed",
		Error:  "navigation failed",
	})
	require.NoError(t, err)

	assert.Equal(t, "navigation failed", got["error"])
	assert.NotContains(t, got, "screenshots")
}

func TestNotifyNon2xxIsSingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).Notify(context.Background(), ports.CallbackPayload{JobID: "j", Status: "failed"})
	require.Error(t, err)

	assert.True(t, errors.IsCode(err, errors.CodeNotification))
	assert.Equal(t, 502, errors.GetFields(err)["status"])
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNotifyTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(url, time.Second).Notify(context.Background(), ports.CallbackPayload{JobID: "j", Status: "failed"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotification))
}

func TestNotifyHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := New(srv.URL, 0).Notify(ctx, ports.CallbackPayload{JobID: "j", Status: "failed"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotification))
}
