package ports

import "context"

// CallbackPayload es lo que recibe la app principal al terminar un job.
type CallbackPayload struct {
	JobID       string   `json:"jobId"`
	Status      string   `json:"status"`
	Screenshots []string `json:"screenshots,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Notifier delivers a job outcome. Implementations make a single attempt.
type Notifier interface {
	Notify(ctx context.Context, p CallbackPayload) error
}
