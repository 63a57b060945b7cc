package progress

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProgressInfo contains detailed progress information for one run
type ProgressInfo struct {
	RunName           string
	TotalTasks        int
	CompletedTasks    int
	FailedTasks       int
	SkippedTasks      int
	RunningTasks      int
	PendingTasks      int
	RunningNames      []string
	ElapsedTime       time.Duration
	EstimatedTimeLeft time.Duration
	CloudBreakdown    map[string]TaskStats
}

// TaskStats provides statistics for a group of tasks
type TaskStats struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Running   int
	Pending   int
}

// Finished returns the number of tasks that reached a terminal state
func (p ProgressInfo) Finished() int {
	return p.CompletedTasks + p.FailedTasks + p.SkippedTasks
}

// Reporter handles progress reporting
type Reporter struct {
	startTime      time.Time
	lastReportTime time.Time
	reportInterval time.Duration
}

// NewReporter creates a new progress reporter
func NewReporter(interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{
		startTime:      time.Now(),
		lastReportTime: time.Now(),
		reportInterval: interval,
	}
}

// Interval returns how often reports are due
func (r *Reporter) Interval() time.Duration {
	return r.reportInterval
}

// ShouldReport returns true if it's time to report progress
func (r *Reporter) ShouldReport() bool {
	return time.Since(r.lastReportTime) >= r.reportInterval
}

// Report generates a formatted progress report
func (r *Reporter) Report(info ProgressInfo) string {
	r.lastReportTime = time.Now()

	var sb strings.Builder

	percentage := 0.0
	if info.TotalTasks > 0 {
		percentage = float64(info.Finished()) / float64(info.TotalTasks) * 100
	}

	if info.RunName != "" {
		sb.WriteString(fmt.Sprintf("[%s] ", info.RunName))
	}
	sb.WriteString(fmt.Sprintf("Progress: %d/%d tasks finished (%.1f%%)",
		info.Finished(), info.TotalTasks, percentage))

	sb.WriteString(fmt.Sprintf(" | Elapsed: %s", FormatDuration(info.ElapsedTime)))
	if info.EstimatedTimeLeft > 0 {
		sb.WriteString(fmt.Sprintf(" | ETA: %s", FormatDuration(info.EstimatedTimeLeft)))
	}

	if info.FailedTasks > 0 || info.SkippedTasks > 0 {
		sb.WriteString(fmt.Sprintf("\n   Failed: %d, Skipped: %d", info.FailedTasks, info.SkippedTasks))
	}

	if len(info.RunningNames) > 0 {
		sb.WriteString(fmt.Sprintf("\n   Running: %s", strings.Join(info.RunningNames, ", ")))
	}

	if len(info.CloudBreakdown) > 1 {
		clouds := make([]string, 0, len(info.CloudBreakdown))
		for cloud := range info.CloudBreakdown {
			clouds = append(clouds, cloud)
		}
		sort.Strings(clouds)

		sb.WriteString("\n   By cloud:")
		for _, cloud := range clouds {
			stats := info.CloudBreakdown[cloud]
			if stats.Total == 0 {
				continue
			}
			label := cloud
			if label == "" {
				label = "local"
			}
			sb.WriteString(fmt.Sprintf("\n      %s: %d/%d completed", label, stats.Completed, stats.Total))
			if stats.Failed > 0 {
				sb.WriteString(fmt.Sprintf(", %d failed", stats.Failed))
			}
			if stats.Running > 0 {
				sb.WriteString(fmt.Sprintf(", %d running", stats.Running))
			}
			if stats.Pending > 0 {
				sb.WriteString(fmt.Sprintf(", %d pending", stats.Pending))
			}
		}
	}

	return sb.String()
}

// ReportTaskStart reports the start of a task
func (r *Reporter) ReportTaskStart(name string, attempt int) string {
	if attempt > 1 {
		return fmt.Sprintf("Starting task: %s (attempt %d)", name, attempt)
	}
	return fmt.Sprintf("Starting task: %s", name)
}

// ReportTaskComplete reports task completion
func (r *Reporter) ReportTaskComplete(name string, duration time.Duration, success bool) string {
	status := "completed"
	if !success {
		status = "failed"
	}
	return fmt.Sprintf("Task %s: %s (took %s)", status, name, FormatDuration(duration))
}

// ReportSummary formats the end-of-run summary line
func (r *Reporter) ReportSummary(info ProgressInfo) string {
	if info.FailedTasks == 0 && info.SkippedTasks == 0 && info.PendingTasks == 0 {
		return fmt.Sprintf("Execution completed: %d/%d tasks successful in %s",
			info.CompletedTasks, info.TotalTasks, FormatDuration(info.ElapsedTime))
	}
	return fmt.Sprintf("Execution completed: %d successful, %d failed, %d skipped, %d not run in %s",
		info.CompletedTasks, info.FailedTasks, info.SkippedTasks, info.PendingTasks, FormatDuration(info.ElapsedTime))
}

// CalculateETA estimates time remaining based on current progress
func CalculateETA(completed, total int, elapsed time.Duration) time.Duration {
	if completed <= 0 || total <= 0 || completed >= total {
		return 0
	}

	averageTimePerTask := elapsed / time.Duration(completed)
	remainingTasks := total - completed
	return averageTimePerTask * time.Duration(remainingTasks)
}

// FormatDuration formats a duration in a user-friendly way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
