package analytics

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"taskflow/internal/model"
)

const notAvailable = "N/A"

type UserSummary struct {
	BestDay        string   `json:"bestDay"`
	BestDayCount   int      `json:"bestDayCount"`
	WorstDay       string   `json:"worstDay"`
	WorstDayCount  int      `json:"worstDayCount"`
	CurrentStreak  int      `json:"currentStreak"`
	AvgPerWeek     float64  `json:"avgTasksPerWeek"`
	TotalCompleted int      `json:"totalCompleted"`
	Insights       []string `json:"insights"`
}

// WeeklyAveragePolicy turns a user's completion times into completions per
// week.
type WeeklyAveragePolicy func(completions []time.Time, now time.Time, loc *time.Location) float64

// CalendarWeekAverage divides the completions by the number of Monday-based
// calendar weeks from the week of the first completion through the current
// week, rounded to one decimal.
func CalendarWeekAverage(completions []time.Time, now time.Time, loc *time.Location) float64 {
	if len(completions) == 0 {
		return 0
	}
	first := completions[0]
	for _, c := range completions[1:] {
		if c.Before(first) {
			first = c
		}
	}

	weeks := int(weekStart(civil(now, loc)).Sub(weekStart(civil(first, loc))).Hours()/24)/7 + 1
	weeks = max(weeks, 1)
	return round1(float64(len(completions)) / float64(weeks))
}

// LegacyWeekAverage reproduces round(n / ceil(n/7)), which is not a calendar
// average but is what earlier reports showed.
func LegacyWeekAverage(completions []time.Time, _ time.Time, _ *time.Location) float64 {
	n := len(completions)
	if n == 0 {
		return 0
	}
	weeks := max(1, int(math.Ceil(float64(n)/7)))
	return math.Round(float64(n) / float64(weeks))
}

// ParseWeeklyAverage maps a config value to a policy. Empty selects calendar.
func ParseWeeklyAverage(name string) (WeeklyAveragePolicy, error) {
	switch name {
	case "", "calendar":
		return CalendarWeekAverage, nil
	case "legacy":
		return LegacyWeekAverage, nil
	default:
		return nil, fmt.Errorf("unknown weekly average policy %q", name)
	}
}

func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Summary builds the personal productivity summary for one user.
func (a *Aggregator) Summary(tasks []model.Task, userID int) UserSummary {
	completions := ForUser(userID).completionTimes(tasks)

	s := UserSummary{
		BestDay:        notAvailable,
		WorstDay:       notAvailable,
		TotalCompleted: len(completions),
		Insights:       []string{},
	}
	s.BestDay, s.BestDayCount, s.WorstDay, s.WorstDayCount = a.weekdays(completions)
	s.CurrentStreak = a.Streak(completions)
	s.AvgPerWeek = a.weekly(completions, a.now(), a.loc)

	if s.BestDayCount > 0 {
		s.Insights = append(s.Insights,
			fmt.Sprintf("You're most productive on %ss with %d tasks completed.", s.BestDay, s.BestDayCount))
	}
	if s.CurrentStreak > 0 {
		s.Insights = append(s.Insights,
			fmt.Sprintf("You're on a %d-day completion streak! Keep it up!", s.CurrentStreak))
	}
	switch {
	case s.AvgPerWeek > 5:
		s.Insights = append(s.Insights,
			fmt.Sprintf("You average %s tasks per week - great pace!", strconv.FormatFloat(s.AvgPerWeek, 'f', -1, 64)))
	case s.AvgPerWeek > 0:
		s.Insights = append(s.Insights, "Try to increase your completion rate to boost productivity.")
	}
	return s
}

// Streak counts consecutive calendar days with a completion, ending today.
func (a *Aggregator) Streak(completions []time.Time) int {
	days := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		days[a.dayKey(c)] = struct{}{}
	}

	streak := 0
	for d := a.today(); ; d = d.AddDate(0, 0, -1) {
		if _, ok := days[d.Format(dateLayout)]; !ok {
			return streak
		}
		streak++
	}
}

// weekdays tallies completions Sunday through Saturday. Best is the first
// day with the highest non-zero count; worst is the first day with the lowest
// count and is only reported when there are completions.
func (a *Aggregator) weekdays(completions []time.Time) (best string, bestN int, worst string, worstN int) {
	best, worst = notAvailable, notAvailable
	if len(completions) == 0 {
		return
	}

	var tally [7]int
	for _, c := range completions {
		tally[c.In(a.loc).Weekday()]++
	}

	worstN = math.MaxInt
	for d, n := range tally {
		if n > bestN {
			best, bestN = time.Weekday(d).String(), n
		}
		if n < worstN {
			worst, worstN = time.Weekday(d).String(), n
		}
	}
	return
}
