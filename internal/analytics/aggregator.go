// Package analytics derives read-only statistics from a population of tasks.
// Nothing here mutates a task or talks to storage; callers pass a snapshot.
package analytics

import (
	"math"
	"time"

	"taskflow/internal/model"
)

const dateLayout = "2006-01-02"

// Aggregator runs the analytics computations against a fixed clock and
// calendar location.
type Aggregator struct {
	now    func() time.Time
	loc    *time.Location
	weekly WeeklyAveragePolicy
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLocation sets the time zone calendar days are bucketed in.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func WithWeeklyAverage(p WeeklyAveragePolicy) Option {
	return func(a *Aggregator) {
		if p != nil {
			a.weekly = p
		}
	}
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:    time.Now,
		loc:    time.UTC,
		weekly: CalendarWeekAverage,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Scope restricts a computation to the assignee entries of one user.
type Scope struct {
	userID int
	scoped bool
}

// AllUsers counts every assignee entry.
var AllUsers = Scope{}

func ForUser(userID int) Scope {
	return Scope{userID: userID, scoped: true}
}

func (s Scope) includes(userID int) bool {
	return !s.scoped || s.userID == userID
}

// assignees yields the in-scope assignee entries of a task.
func (s Scope) assignees(t *model.Task) []*model.AssigneeProgress {
	out := make([]*model.AssigneeProgress, 0, len(t.Assignees))
	for i := range t.Assignees {
		if s.includes(t.Assignees[i].UserID) {
			out = append(out, &t.Assignees[i])
		}
	}
	return out
}

// completionTimes collects completedAt for every in-scope completed assignee.
func (s Scope) completionTimes(tasks []model.Task) []time.Time {
	var out []time.Time
	for i := range tasks {
		for _, a := range s.assignees(&tasks[i]) {
			if a.Status == model.StatusCompleted && a.CompletedAt != nil {
				out = append(out, *a.CompletedAt)
			}
		}
	}
	return out
}

// civil truncates t to midnight of its calendar day in loc, expressed in UTC
// so day arithmetic is not affected by DST shifts.
func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (a *Aggregator) dayKey(t time.Time) string {
	return civil(t, a.loc).Format(dateLayout)
}

func (a *Aggregator) today() time.Time {
	return civil(a.now(), a.loc)
}

// wholeDays counts full 24h periods from start to end, truncated toward zero.
func wholeDays(end, start time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
