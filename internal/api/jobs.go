package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dataforge-ai/dataforge/internal/dataset"
)

const (
	jobRunning   = "running"
	jobCompleted = "completed"
	jobFailed    = "failed"
)

// ShardInfo is the caller-visible record of one written output file.
type ShardInfo struct {
	FileName   string `json:"fileName"`
	TokenCount int    `json:"tokenCount"`
}

// Job tracks one generation run. Jobs live in a registry keyed by id, not
// in process-wide state, so concurrent runs do not interfere.
type Job struct {
	ID         uuid.UUID        `json:"id"`
	Status     string           `json:"status"`
	Progress   dataset.Progress `json:"progress"`
	Shards     []ShardInfo      `json:"shards"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

type jobRegistry struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[uuid.UUID]*Job)}
}

func (r *jobRegistry) create() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := &Job{
		ID:        uuid.New(),
		Status:    jobRunning,
		StartedAt: time.Now().UTC(),
	}
	r.jobs[j.ID] = j
	return j
}

func (r *jobRegistry) get(id uuid.UUID) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (r *jobRegistry) setProgress(id uuid.UUID, p dataset.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.Progress = p
	}
}

func (r *jobRegistry) addShard(id uuid.UUID, info ShardInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.Shards = append(j.Shards, info)
	}
}

func (r *jobRegistry) finish(id uuid.UUID, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	j.FinishedAt = &now
	if errMsg != "" {
		j.Status = jobFailed
		j.Error = errMsg
	} else {
		j.Status = jobCompleted
	}
}
