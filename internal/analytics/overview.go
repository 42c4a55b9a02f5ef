package analytics

import (
	"taskflow/internal/model"
)

type OverviewStats struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	InProgress        int     `json:"inProgress"`
	Completed         int     `json:"completed"`
	CompletionRate    int     `json:"completionRate"`
	TotalTasks        int     `json:"totalTasks"`
	ActiveUsers       int     `json:"activeUsers"`
	OverdueTasks      int     `json:"overdueTasks"`
	AvgCompletionDays float64 `json:"avgCompletionDays"`
}

// Overview counts assignee entries by status. A task is counted in
// TotalTasks when it has at least one in-scope assignee, or always for
// AllUsers.
func (a *Aggregator) Overview(tasks []model.Task, scope Scope) OverviewStats {
	var stats OverviewStats
	now := a.now()
	users := make(map[int]struct{})

	for i := range tasks {
		t := &tasks[i]
		entries := scope.assignees(t)
		if scope.scoped && len(entries) == 0 {
			continue
		}
		stats.TotalTasks++

		incomplete := false
		for _, e := range entries {
			users[e.UserID] = struct{}{}
			stats.Total++
			switch e.Status {
			case model.StatusPending:
				stats.Pending++
				incomplete = true
			case model.StatusInProgress:
				stats.InProgress++
				incomplete = true
			case model.StatusCompleted:
				stats.Completed++
			}
		}
		if incomplete && t.DueDate != nil && t.DueDate.Before(now) {
			stats.OverdueTasks++
		}
	}

	stats.ActiveUsers = len(users)
	stats.CompletionRate = percent(stats.Completed, stats.Total)
	stats.AvgCompletionDays = a.AvgCompletionDays(tasks, scope)
	return stats
}

// AvgCompletionDays averages whole days from start to completion over
// completed assignees. The start is startedAt, or the task's createdAt when
// the assignee never recorded one. Negative spans count as zero.
func (a *Aggregator) AvgCompletionDays(tasks []model.Task, scope Scope) float64 {
	sum, n := 0, 0
	for i := range tasks {
		t := &tasks[i]
		for _, e := range scope.assignees(t) {
			if e.Status != model.StatusCompleted || e.CompletedAt == nil {
				continue
			}
			start := t.CreatedAt
			if e.StartedAt != nil {
				start = *e.StartedAt
			}
			sum += max(0, wholeDays(*e.CompletedAt, start))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round1(float64(sum) / float64(n))
}

type PriorityCount struct {
	Priority model.Priority `json:"priority"`
	Count    int            `json:"count"`
}

// PriorityDistribution counts tasks per priority in low, medium, high,
// urgent order. Unknown priorities are not counted.
func (a *Aggregator) PriorityDistribution(tasks []model.Task) []PriorityCount {
	counts := make(map[model.Priority]int, len(model.Priorities))
	for i := range tasks {
		counts[tasks[i].Priority]++
	}
	out := make([]PriorityCount, 0, len(model.Priorities))
	for _, p := range model.Priorities {
		out = append(out, PriorityCount{Priority: p, Count: counts[p]})
	}
	return out
}
