package analytics

import (
	"sort"

	"taskflow/internal/model"
)

type LeaderboardEntry struct {
	UserID            int     `json:"userId"`
	Completed         int     `json:"tasksCompleted"`
	Total             int     `json:"totalTasks"`
	AvgCompletionDays float64 `json:"avgCompletionDays"`
	ProductivityScore int     `json:"productivityScore"`
}

type leaderStats struct {
	entry   LeaderboardEntry
	daysSum int
	timed   int
}

// Leaderboard ranks every assignee by productivity score, highest first.
// Users are collected in first-seen order and equal scores keep that order.
func (a *Aggregator) Leaderboard(tasks []model.Task) []LeaderboardEntry {
	var order []int
	stats := make(map[int]*leaderStats)

	for i := range tasks {
		for _, e := range tasks[i].Assignees {
			s, ok := stats[e.UserID]
			if !ok {
				s = &leaderStats{entry: LeaderboardEntry{UserID: e.UserID}}
				stats[e.UserID] = s
				order = append(order, e.UserID)
			}
			s.entry.Total++
			if e.Status != model.StatusCompleted {
				continue
			}
			s.entry.Completed++
			if e.StartedAt != nil && e.CompletedAt != nil {
				s.daysSum += wholeDays(*e.CompletedAt, *e.StartedAt)
				s.timed++
			}
		}
	}

	out := make([]LeaderboardEntry, 0, len(order))
	for _, id := range order {
		s := stats[id]
		s.entry.ProductivityScore = percent(s.entry.Completed, s.entry.Total)
		if s.timed > 0 {
			s.entry.AvgCompletionDays = round1(float64(s.daysSum) / float64(s.timed))
		}
		out = append(out, s.entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProductivityScore > out[j].ProductivityScore
	})
	return out
}
