package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/beanstalk-bridge/internal/api/dto"
	"github.com/cuongbtq/beanstalk-bridge/internal/history"
	"github.com/cuongbtq/beanstalk-bridge/internal/pipeline"
	"github.com/cuongbtq/beanstalk-bridge/internal/worker"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var runStatuses = []string{
	history.RunStatusPending,
	history.RunStatusRunning,
	history.RunStatusSucceeded,
	history.RunStatusWarning,
	history.RunStatusFailed,
}

// ListTasks handles GET /api/v1/tasks
func (h *RunHandler) ListTasks(c *gin.Context) {
	tasks := h.tasks
	if tasks == nil {
		tasks = []string{}
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{Tasks: tasks})
}

// ScheduleRun handles POST /api/v1/tasks/:task/runs
// Queues a run of the task on the worker pool
func (h *RunHandler) ScheduleRun(c *gin.Context) {
	task := c.Param("task")

	h.logger.Info("ScheduleRun called",
		slog.String("path", c.Request.URL.Path),
		slog.String("task", task),
	)

	run, err := h.scheduler.Schedule(c.Request.Context(), task)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrUnknownTask):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Task not found",
			})
		case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped), errors.Is(err, worker.ErrPoolNotStarted):
			h.logger.Warn("Run not scheduled", slog.String("task", task), slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Worker pool is not accepting runs",
			})
		default:
			h.logger.Error("Failed to schedule run", slog.String("task", task), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to schedule run",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.ScheduleRunResponse{
		RunID:  run.RunID,
		Task:   run.Task,
		Status: run.Status,
	})
}

// GetRun handles GET /api/v1/runs/:run_id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	if _, err := uuid.Parse(runID); err != nil {
		h.logger.Error("Invalid run_id format", slog.String("run_id", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_id must be a valid UUID",
		})
		return
	}

	run, err := h.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Run not found",
			})
			return
		}
		h.logger.Error("Failed to get run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get run",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromRun(run))
}

// ListRuns handles GET /api/v1/runs
// Lists runs newest first with optional task and status filters
func (h *RunHandler) ListRuns(c *gin.Context) {
	var req dto.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !slices.Contains(runStatuses, req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeRunCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	runs, err := h.store.ListRuns(c.Request.Context(), history.RunFilter{
		Task:     req.Task,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list runs",
		})
		return
	}

	hasMore := len(runs) > req.PageSize
	if hasMore {
		runs = runs[:req.PageSize]
	}

	resp := dto.ListRunsResponse{Runs: make([]dto.RunDTO, len(runs))}
	for i := range runs {
		resp.Runs[i] = dto.FromRun(&runs[i])
	}

	if hasMore {
		last := runs[len(runs)-1]
		resp.NextCursor = EncodeRunCursor(&history.RunCursor{
			CreatedAt: last.CreatedAt,
			RunID:     last.RunID,
		})
	}

	c.JSON(http.StatusOK, resp)
}
