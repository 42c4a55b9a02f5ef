package analytics

import (
	"taskflow/internal/model"
)

type TaskTime struct {
	TaskID           string `json:"taskId"`
	Title            string `json:"title"`
	TimeSpentMinutes int    `json:"timeSpentMinutes"`
	TimerActive      bool   `json:"isTimerActive"`
}

type TimeTrackingSummary struct {
	TotalMinutes int        `json:"totalTimeLogged"`
	TasksTracked int        `json:"tasksTracked"`
	ActiveTimers int        `json:"activeTimers"`
	Tasks        []TaskTime `json:"tasks"`
}

// TimeTracking sums a user's logged minutes over tasks where they have
// tracked time or a running timer.
func (a *Aggregator) TimeTracking(tasks []model.Task, userID int) TimeTrackingSummary {
	sum := TimeTrackingSummary{Tasks: []TaskTime{}}
	for i := range tasks {
		e := tasks[i].Assignee(userID)
		if e == nil || (e.TimeSpentMinutes == 0 && !e.IsActive()) {
			continue
		}
		sum.Tasks = append(sum.Tasks, TaskTime{
			TaskID:           tasks[i].ID,
			Title:            tasks[i].Title,
			TimeSpentMinutes: e.TimeSpentMinutes,
			TimerActive:      e.IsActive(),
		})
		sum.TotalMinutes += e.TimeSpentMinutes
		if e.IsActive() {
			sum.ActiveTimers++
		}
	}
	sum.TasksTracked = len(sum.Tasks)
	return sum
}
