package models

import (
	"fmt"
	"time"
)

// JobStatus is the outcome reported in the callback.
type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusFinished JobStatus = "finished"
	StatusFailed   JobStatus = "failed"
)

// JobState is the orchestrator's position in the pipeline.
type JobState string

const (
	StateCreated            JobState = "created"
	StateSessionOpen        JobState = "session_open"
	StateNavigating         JobState = "navigating"
	StateAwaitingReadiness  JobState = "awaiting_readiness"
	StateSequencingCommands JobState = "sequencing_commands"
	StateCapturing          JobState = "capturing"
	StateNotifying          JobState = "notifying"
	StateClosed             JobState = "closed"
	StateFailed             JobState = "failed"
)

// Transiciones validas. failed se alcanza desde cualquier estado activo.
var transitions = map[JobState][]JobState{
	StateCreated:            {StateSessionOpen, StateFailed},
	StateSessionOpen:        {StateNavigating, StateFailed},
	StateNavigating:         {StateAwaitingReadiness, StateFailed},
	StateAwaitingReadiness:  {StateSequencingCommands, StateFailed},
	StateSequencingCommands: {StateCapturing, StateFailed},
	StateCapturing:          {StateNotifying, StateFailed},
	StateFailed:             {StateNotifying},
	StateNotifying:          {StateClosed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to JobState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderSpecification is one configured product in the scene.
type OrderSpecification struct {
	SKU        string         `json:"sku"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Job lives only in process memory and is owned by a single orchestrator goroutine.
type Job struct {
	ID                  string
	URL                 string
	OrderSpecifications []OrderSpecification

	Status      JobStatus
	State       JobState
	Error       string
	Screenshots []string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewJob returns a pending job in the created state.
func NewJob(id, url string, specs []OrderSpecification) *Job {
	return &Job{
		ID:                  id,
		URL:                 url,
		OrderSpecifications: specs,
		Status:              StatusPending,
		State:               StateCreated,
		CreatedAt:           time.Now().UTC(),
	}
}

// Advance moves the job to the next state, rejecting illegal moves.
func (j *Job) Advance(to JobState) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", j.ID, j.State, to)
	}
	j.State = to
	return nil
}

// Finish records a successful run. Only the first terminal outcome sticks.
func (j *Job) Finish(screenshots []string) {
	if j.Terminal() {
		return
	}
	j.Status = StatusFinished
	j.Screenshots = screenshots
	j.FinishedAt = time.Now().UTC()
}

// Fail records a failure and drops any partial screenshots.
func (j *Job) Fail(msg string) {
	if j.Terminal() {
		return
	}
	j.Status = StatusFailed
	j.Error = msg
	j.Screenshots = nil
	j.State = StateFailed
	j.FinishedAt = time.Now().UTC()
}

// Terminal reports whether the job already has an outcome.
func (j *Job) Terminal() bool {
	return j.Status == StatusFinished || j.Status == StatusFailed
}
