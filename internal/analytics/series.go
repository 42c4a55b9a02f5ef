package analytics

import (
	"sort"

	"taskflow/internal/model"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 366
)

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TeamProgress returns one bucket per calendar day for the trailing
// windowDays days including today, oldest first. Every day is present even
// without completions.
func (a *Aggregator) TeamProgress(tasks []model.Task, windowDays int, scope Scope) []DailyCount {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	windowDays = min(windowDays, MaxWindowDays)

	today := a.today()
	series := make([]DailyCount, windowDays)
	index := make(map[string]int, windowDays)
	for i := 0; i < windowDays; i++ {
		key := today.AddDate(0, 0, i-windowDays+1).Format(dateLayout)
		series[i] = DailyCount{Date: key}
		index[key] = i
	}

	for _, at := range scope.completionTimes(tasks) {
		if i, ok := index[a.dayKey(at)]; ok {
			series[i].Count++
		}
	}
	return series
}

// Heatmap returns a count for every day that has at least one completion,
// oldest first.
func (a *Aggregator) Heatmap(tasks []model.Task, scope Scope) []DailyCount {
	counts := make(map[string]int)
	for _, at := range scope.completionTimes(tasks) {
		counts[a.dayKey(at)]++
	}

	out := make([]DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DailyCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
