// Package store keeps processing jobs and their results for a limited time.
package store

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-lpr/pipeline"
)

// ErrNotFound is returned for unknown or evicted job ids.
var ErrNotFound = errors.New("job not found")

// Kind is what a job processes.
type Kind string

const (
	// KindVideo is a video upload.
	KindVideo Kind = "video"
	// KindImage is a still image upload.
	KindImage Kind = "image"
)

// Status is the lifecycle of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Finished reports whether the job will not change anymore.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one upload and its outcome.
type Job struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`
	// InputPath is the uploaded file.
	InputPath string `json:"-"`
	// OutputPath is the annotated file.
	OutputPath string                `json:"-"`
	Video      *pipeline.VideoResult `json:"video,omitempty"`
	Plates     []pipeline.PlateText  `json:"plates,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Options configures a Store.
type Options struct {
	// TTL is how long a finished job is kept after its last update.
	TTL time.Duration
	// SweepInterval is how often expired jobs are evicted once Start is called.
	SweepInterval time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// OnEvict is called outside the lock for every removed job, e.g. to
	// delete its files.
	OnEvict func(Job)
}

// Store is a mutex protected map of jobs with TTL eviction.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	ttl       time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
	onEvict   func(Job)
	scheduler gocron.Scheduler
	started   bool
}

// New creates a store. Eviction only runs on Sweep until Start is called.
//
// Arguments:
//   - opts: The store options.
//
// Returns:
//   - *Store: The store. The caller must Close it.
//   - error: An error if the options are invalid or the scheduler cannot be created.
func New(opts Options) (*Store, error) {
	if opts.TTL <= 0 {
		return nil, errors.Errorf("ttl must be positive, got %s", opts.TTL)
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.TTL / 2
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create eviction scheduler")
	}

	return &Store{
		jobs:      make(map[string]*Job),
		ttl:       opts.TTL,
		interval:  opts.SweepInterval,
		clock:     opts.Clock,
		logger:    opts.Logger,
		onEvict:   opts.OnEvict,
		scheduler: scheduler,
	}, nil
}

// Start schedules the periodic sweep.
func (s *Store) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if n := s.Sweep(); n > 0 {
				s.logger.Info("evicted expired jobs", zap.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule eviction")
	}
	s.scheduler.Start()
	s.started = true
	return nil
}

// Close stops the sweep.
func (s *Store) Close() error {
	if !s.started {
		return nil
	}
	s.started = false
	return errors.Wrap(s.scheduler.Shutdown(), "failed to stop eviction scheduler")
}

// Create registers a new pending job with a random id.
func (s *Store) Create(kind Kind, inputPath string) Job {
	now := s.clock.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return *job
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// Update applies fn to the job under the lock and refreshes its timestamp.
func (s *Store) Update(id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	fn(job)
	job.ID = id
	job.UpdatedAt = s.clock.Now()
	return *job, nil
}

// Delete removes a job immediately.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.evicted(*job)
	return nil
}

// Sweep removes finished jobs not updated within the TTL and returns how
// many were removed. Pending and running jobs are never evicted.
func (s *Store) Sweep() int {
	cutoff := s.clock.Now().Add(-s.ttl)

	s.mu.Lock()
	var expired []Job
	for id, job := range s.jobs {
		if job.Status.Finished() && job.UpdatedAt.Before(cutoff) {
			expired = append(expired, *job)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	for _, job := range expired {
		s.evicted(job)
	}
	return len(expired)
}

// Len is the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) evicted(job Job) {
	s.logger.Debug("job removed", zap.String("job", job.ID), zap.String("status", string(job.Status)))
	if s.onEvict != nil {
		s.onEvict(job)
	}
}
