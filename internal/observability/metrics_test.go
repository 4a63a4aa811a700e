package observability

import (
	"errors"
	"testing"
	"time"
)

func TestMetricsJobCounters(t *testing.T) {
	m := NewMetrics()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	m.RecordJobRun("reconcile", start, time.Second, nil)
	m.RecordJobRun("reconcile", start.Add(time.Hour), 2*time.Second, errors.New("db down"))
	m.RecordJobSkipped("reconcile")
	m.RecordRequest("/api/v1/tickets", "GET", 200, time.Millisecond)
	m.RecordError("/api/v1/tickets", "POST", "VALIDATION_FAILED")

	snap := m.Snapshot()
	job := snap.Jobs["reconcile"]
	if job.Runs != 2 || job.Failures != 1 || job.Skipped != 1 {
		t.Fatalf("unexpected job stats %+v", job)
	}
	if job.LastError != "db down" || job.LastDuration != 2*time.Second {
		t.Fatalf("last run not recorded: %+v", job)
	}
	if snap.Requests["/api/v1/tickets|GET|200"] != 1 {
		t.Fatalf("request counter missing: %v", snap.Requests)
	}
	if snap.Errors["/api/v1/tickets|POST|VALIDATION_FAILED"] != 1 {
		t.Fatalf("error counter missing: %v", snap.Errors)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordJobRun("x", time.Now(), 0, nil)
	m.RecordJobSkipped("x")
	m.RecordRequest("/", "GET", 200, 0)
	if len(m.Snapshot().Jobs) != 0 {
		t.Fatal("nil metrics should snapshot empty")
	}
}
