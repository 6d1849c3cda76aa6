package dto

import (
	"time"

	"github.com/cuongbtq/beanstalk-bridge/internal/history"
)

type ListRunsRequest struct {
	Task     string `form:"task"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListRunsResponse struct {
	Runs       []RunDTO `json:"runs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type ScheduleRunResponse struct {
	RunID  string `json:"run_id"`
	Task   string `json:"task"`
	Status string `json:"status"`
}

type ListTasksResponse struct {
	Tasks []string `json:"tasks"`
}

type RunDTO struct {
	RunID      string `json:"run_id"`
	Task       string `json:"task"`
	Status     string `json:"status"`
	Produced   int    `json:"produced"`
	Accepted   int    `json:"accepted"`
	Rejected   int    `json:"rejected"`
	Undecided  int    `json:"undecided"`
	Failed     int    `json:"failed"`
	Warning    string `json:"warning,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// FromRun converts a stored run to its API form
func FromRun(run *history.Run) RunDTO {
	return RunDTO{
		RunID:      run.RunID,
		Task:       run.Task,
		Status:     run.Status,
		Produced:   run.Produced,
		Accepted:   run.Accepted,
		Rejected:   run.Rejected,
		Undecided:  run.Undecided,
		Failed:     run.Failed,
		Warning:    run.Warning,
		Error:      run.Error,
		CreatedAt:  run.CreatedAt.Format(time.RFC3339),
		StartedAt:  formatTime(run.StartedAt),
		FinishedAt: formatTime(run.FinishedAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
