package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-tracker/internal/observability"
)

// Job names.
const (
	JobReconcile = "reconcile"
	JobNotify    = "notify"
)

var (
	// ErrJobRunning is returned when a run is requested while the same job
	// is still in flight here or on another instance.
	ErrJobRunning = errors.New("job already running")
	// ErrUnknownJob is returned by RunNow for an unregistered name.
	ErrUnknownJob = errors.New("unknown job")
	// ErrStopped is returned for runs requested after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// JobFunc performs one run of a job and returns a summary of the work done.
type JobFunc func(ctx context.Context) (any, error)

type job struct {
	name    string
	spec    string
	run     JobFunc
	running atomic.Bool
}

// Scheduler fires jobs on cron schedules. A job never overlaps with itself:
// a tick or manual trigger that arrives while the job runs is dropped.
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	jobs     map[string]*job
	stopping bool
	wg       sync.WaitGroup
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Location *time.Location
	Locker   Locker
	LockTTL  time.Duration
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Locker == nil {
		opts.Locker = NoopLocker{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("scheduler")
	cronLog := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		locker:  opts.Locker,
		lockTTL: opts.LockTTL,
		metrics: opts.Metrics,
		logger:  logger,
		jobs:    make(map[string]*job),
	}
}

// Register adds a job under a standard five-field cron spec.
func (s *Scheduler) Register(name, spec string, run JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	j := &job{name: name, spec: spec, run: run}
	if _, err := s.cron.AddFunc(spec, func() {
		_, _ = s.execute(context.Background(), j, "schedule")
	}); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.jobs[name] = j
	return nil
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, name := range s.Jobs() {
		j := s.lookup(name)
		s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", j.spec))
	}
}

// Stop prevents further ticks and waits for in-flight runs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs a job immediately through the same guard as scheduled ticks.
// The run is detached from ctx cancellation so a caller going away does not
// abort it halfway.
func (s *Scheduler) RunNow(ctx context.Context, name string) (any, error) {
	j := s.lookup(name)
	if j == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(context.WithoutCancel(ctx), j, "manual")
}

// Running reports whether the named job is in flight in this process.
func (s *Scheduler) Running(name string) bool {
	j := s.lookup(name)
	return j != nil && j.running.Load()
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) lookup(name string) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[name]
}

func (s *Scheduler) execute(ctx context.Context, j *job, trigger string) (any, error) {
	if !j.running.CompareAndSwap(false, true) {
		s.metrics.RecordJobSkipped(j.name)
		s.logger.Warn("job still running; run skipped", zap.String("job", j.name), zap.String("trigger", trigger))
		return nil, ErrJobRunning
	}
	defer j.running.Store(false)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	release, err := s.locker.Obtain(ctx, "jobs:"+j.name, s.lockTTL)
	switch {
	case errors.Is(err, ErrLockHeld):
		s.metrics.RecordJobSkipped(j.name)
		s.logger.Info("job running on another instance; run skipped", zap.String("job", j.name))
		return nil, ErrJobRunning
	case err != nil:
		// runs are idempotent, so a lock outage only costs duplicate work
		s.logger.Warn("job lock unavailable; running without it", zap.String("job", j.name), zap.Error(err))
		release = func() {}
	}
	defer release()

	started := time.Now()
	result, err := j.run(ctx)
	s.metrics.RecordJobRun(j.name, started, time.Since(started), err)
	if err != nil {
		s.logger.Error("job failed", zap.String("job", j.name), zap.String("trigger", trigger), zap.Error(err))
	}
	return result, err
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
