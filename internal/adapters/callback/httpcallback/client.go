package httpcallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"scenecap/internal/pkg/errors"
	"scenecap/internal/ports"
)

const op = "callback.notify"

// Client posts job outcomes to the main application's callback URL.
type Client struct {
	url    string
	client *http.Client
}

var _ ports.Notifier = (*Client)(nil)

// New returns a Client. timeout bounds each request; 0 leaves it to the caller's context.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify makes exactly one POST. Any transport error or non-2xx answer is
// returned as NOTIFICATION_ERROR; nothing is retried.
func (c *Client) Notify(ctx context.Context, p ports.CallbackPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeNotification, op, "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeNotification, op, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeNotification, op, "post callback").
			WithField("job_id", p.JobID)
	}
	defer res.Body.Close()
	// drenar el body para reutilizar la conexion
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.New(errors.CodeNotification, fmt.Sprintf("callback http %d", res.StatusCode)).
			WithField("job_id", p.JobID).
			WithField("status", res.StatusCode)
	}
	return nil
}
