package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-tracker/internal/observability"
	"github.com/spec-kit/locate-tracker/internal/service"
	"github.com/spec-kit/locate-tracker/internal/worker"
	apperrors "github.com/spec-kit/locate-tracker/pkg/util/errorutil"
)

// JobRunner runs a registered job on demand.
type JobRunner interface {
	RunNow(ctx context.Context, name string) (any, error)
}

// JobsHandler exposes manual job triggers.
type JobsHandler struct {
	runner JobRunner
}

// NewJobsHandler constructs handler.
func NewJobsHandler(runner JobRunner) *JobsHandler {
	return &JobsHandler{runner: runner}
}

// Reconcile POST /jobs/reconcile.
func (h *JobsHandler) Reconcile(c *fiber.Ctx) error {
	return h.run(c, worker.JobReconcile)
}

// Notify POST /jobs/notify.
func (h *JobsHandler) Notify(c *fiber.Ctx) error {
	return h.run(c, worker.JobNotify)
}

func (h *JobsHandler) run(c *fiber.Ctx, name string) error {
	result, err := h.runner.RunNow(c.UserContext(), name)
	var dispatchErrs *service.DispatchErrors
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"data": fiber.Map{"job": name, "result": result}})
	case errors.As(err, &dispatchErrs):
		failures := make([]fiber.Map, 0, len(dispatchErrs.Failures))
		for _, f := range dispatchErrs.Failures {
			failures = append(failures, fiber.Map{"recipient": f.Recipient, "tickets": f.Tickets, "error": f.Err.Error()})
		}
		return c.Status(http.StatusMultiStatus).JSON(fiber.Map{"data": fiber.Map{
			"job":      name,
			"result":   result,
			"failures": failures,
		}})
	case errors.Is(err, worker.ErrJobRunning):
		return apperrors.NewConflict("job already running", map[string]any{"job": name})
	case errors.Is(err, worker.ErrUnknownJob):
		return apperrors.NewNotFound("job", map[string]any{"job": name})
	case errors.Is(err, worker.ErrStopped):
		return apperrors.NewDomainError("UNAVAILABLE", "scheduler is shutting down", http.StatusServiceUnavailable, nil)
	}
	return apperrors.NewInternalError(err)
}

// MetricsHandler exposes in-memory counters.
type MetricsHandler struct {
	metrics *observability.Metrics
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot GET /metrics.
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
