package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	jobs         map[string]*JobStats
}

// JobStats summarizes the runs of one background job.
type JobStats struct {
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Skipped      int64         `json:"skipped"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastRunAt    time.Time     `json:"last_run_at"`
	LastError    string        `json:"last_error,omitempty"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests map[string]int64    `json:"requests"`
	Errors   map[string]int64    `json:"errors"`
	Jobs     map[string]JobStats `json:"jobs"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		jobs:         make(map[string]*JobStats),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordJobRun records a completed job run.
func (m *Metrics) RecordJobRun(job string, startedAt time.Time, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.job(job)
	stats.Runs++
	stats.LastDuration = duration
	stats.LastRunAt = startedAt
	stats.LastError = ""
	if err != nil {
		stats.Failures++
		stats.LastError = err.Error()
	}
}

// RecordJobSkipped records a tick dropped because the job was still running.
func (m *Metrics) RecordJobSkipped(job string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.job(job).Skipped++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Requests: map[string]int64{},
		Errors:   map[string]int64{},
		Jobs:     map[string]JobStats{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.jobs {
		snap.Jobs[k] = *v
	}
	return snap
}

func (m *Metrics) job(name string) *JobStats {
	stats, ok := m.jobs[name]
	if !ok {
		stats = &JobStats{}
		m.jobs[name] = stats
	}
	return stats
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
