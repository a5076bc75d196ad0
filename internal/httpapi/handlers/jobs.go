package handlers

import (
	"net/http"

	"scenecap/internal/httpkit"
	"scenecap/internal/intake"
)

type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// PostJob validates the submission, hands it to the dispatcher and answers
// with the job id before any processing happens.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	httpkit.LimitBody(w, r)
	defer r.Body.Close()

	job, err := intake.Parse(r.Body)
	if err != nil {
		return err
	}

	if err := h.dispatcher.Submit(job); err != nil {
		return err
	}

	h.log.FromContext(r.Context()).Info("job accepted",
		"job_id", job.ID,
		"url", job.URL,
		"skus", len(job.OrderSpecifications),
	)
	httpkit.WriteJSON(w, http.StatusOK, CreateJobResponse{JobID: job.ID})
	return nil
}
