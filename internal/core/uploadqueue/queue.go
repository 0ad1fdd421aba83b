package uploadqueue

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/bzrportal/knowledge/internal/models"
)

// Event is one observer notification for a job. Terminal events
// ("completed", "failed") are the last a subscriber receives before its
// channel closes.
type Event struct {
	Type     string `json:"type"` // progress | completed | failed
	JobID    string `json:"job_id"`
	Progress int    `json:"progress"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProcessFunc does the actual work for one job. It reports progress in
// percent through report; the returned value is attached to the completed
// event.
type ProcessFunc func(ctx context.Context, job models.UploadJob, report func(pct int)) (any, error)

// Queue is a FIFO of upload-processing jobs drained by exactly one worker
// goroutine, so at most one job is in flight at a time. Enqueue never
// blocks: a full queue is reported as an error instead. Job state only
// moves forward (queued -> processing -> completed|failed) and terminal
// states are final; there is no automatic retry.
type Queue struct {
	process ProcessFunc

	mu   sync.Mutex
	jobs map[string]*models.UploadJob
	subs map[string][]chan Event

	pending chan string
	done    chan struct{}
}

func New(capacity int, process ProcessFunc) *Queue {
	if capacity < 1 {
		capacity = 64
	}
	return &Queue{
		process: process,
		jobs:    make(map[string]*models.UploadJob),
		subs:    make(map[string][]chan Event),
		pending: make(chan string, capacity),
		done:    make(chan struct{}),
	}
}

// Start launches the single worker. It returns immediately; the worker
// stops when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				log.Println("uploadqueue: worker shutting down")
				return
			case jobID := <-q.pending:
				q.runJob(ctx, jobID)
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (q *Queue) Wait() { <-q.done }

// Enqueue registers a job and appends it to the FIFO without blocking.
func (q *Queue) Enqueue(filePath, mimeType, originalFilename, ownerUserID string) (string, error) {
	job := &models.UploadJob{
		ID:               uuid.NewString(),
		FilePath:         filePath,
		MimeType:         mimeType,
		OriginalFilename: originalFilename,
		OwnerUserID:      ownerUserID,
		Status:           models.JobStatusQueued,
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
		return job.ID, nil
	default:
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return "", fmt.Errorf("upload queue full (%d pending)", cap(q.pending))
	}
}

// Get returns a snapshot of a job's current state.
func (q *Queue) Get(jobID string) (models.UploadJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return models.UploadJob{}, false
	}
	return *job, true
}

// Subscribe returns a channel of the job's events and a cancel function.
// The channel closes after a terminal event or on cancel. Subscribing to a
// job that already finished delivers its terminal event immediately, so a
// subscriber can never hang on a job that raced to completion.
func (q *Queue) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	q.mu.Lock()
	if job, ok := q.jobs[jobID]; ok && (job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed) {
		ev := Event{Type: job.Status, JobID: job.ID, Progress: job.Progress, Error: job.Error}
		q.mu.Unlock()
		ch <- ev
		close(ch)
		return ch, func() {}
	}
	q.subs[jobID] = append(q.subs[jobID], ch)
	q.mu.Unlock()

	cancel := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		list := q.subs[jobID]
		for i, c := range list {
			if c == ch {
				q.subs[jobID] = append(list[:i], list[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel
}

func (q *Queue) runJob(ctx context.Context, jobID string) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = models.JobStatusProcessing
	snapshot := *job
	q.mu.Unlock()

	q.publish(jobID, Event{Type: "progress", JobID: jobID, Progress: 0}, false)

	report := func(pct int) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		q.mu.Lock()
		job.Progress = pct
		q.mu.Unlock()
		q.publish(jobID, Event{Type: "progress", JobID: jobID, Progress: pct}, false)
	}

	result, err := q.process(ctx, snapshot, report)

	q.mu.Lock()
	if err != nil {
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
	}
	progress := job.Progress
	q.mu.Unlock()

	if err != nil {
		log.Printf("uploadqueue: job %s failed: %v", jobID, err)
		q.publish(jobID, Event{Type: "failed", JobID: jobID, Progress: progress, Error: err.Error()}, true)
		return
	}
	q.publish(jobID, Event{Type: "completed", JobID: jobID, Progress: 100, Result: result}, true)
}

// publish fans an event out to the job's subscribers. Slow subscribers are
// skipped rather than blocking the worker. Terminal events close and drop
// every subscriber channel.
func (q *Queue) publish(jobID string, ev Event, terminal bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, ch := range q.subs[jobID] {
		select {
		case ch <- ev:
		default:
		}
		if terminal {
			close(ch)
		}
	}
	if terminal {
		delete(q.subs, jobID)
	}
}
