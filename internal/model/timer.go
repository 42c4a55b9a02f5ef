package model

import (
	"math"
	"time"
)

type TimerAction string

const (
	TimerStart TimerAction = "start"
	TimerPause TimerAction = "pause"
	TimerStop  TimerAction = "stop"
)

func ParseTimerAction(s string) (TimerAction, error) {
	switch a := TimerAction(s); a {
	case TimerStart, TimerPause, TimerStop:
		return a, nil
	case "":
		return "", Validationf("action is required")
	default:
		return "", Validationf("invalid action, use: start, pause, or stop")
	}
}

// Timer is the single-slot clock embedded in an assignee entry.
type Timer struct {
	TimeSpentMinutes     int        `json:"timeSpentMinutes"`
	ActiveTimerStartedAt *time.Time `json:"activeTimerStartedAt"`
}

func (t *Timer) IsActive() bool {
	return t.ActiveTimerStartedAt != nil
}

func (t *Timer) Start(now time.Time) error {
	if t.IsActive() {
		return Conflictf("timer already running")
	}
	started := now
	t.ActiveTimerStartedAt = &started
	return nil
}

// Stop closes the running interval and adds its rounded minutes. A backwards
// clock jump counts as zero elapsed time.
func (t *Timer) Stop(now time.Time) error {
	if !t.IsActive() {
		return Conflictf("timer not running")
	}
	t.TimeSpentMinutes += ElapsedMinutes(*t.ActiveTimerStartedAt, now)
	t.ActiveTimerStartedAt = nil
	return nil
}

// Pause has the same effect as Stop.
func (t *Timer) Pause(now time.Time) error {
	return t.Stop(now)
}

func (t *Timer) Apply(action TimerAction, now time.Time) error {
	switch action {
	case TimerStart:
		return t.Start(now)
	case TimerPause:
		return t.Pause(now)
	case TimerStop:
		return t.Stop(now)
	}
	return Validationf("invalid action, use: start, pause, or stop")
}

// ElapsedMinutes rounds (to-from) to whole minutes, half up, never negative.
func ElapsedMinutes(from, to time.Time) int {
	ms := to.Sub(from).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Floor(float64(ms)/60000 + 0.5))
}
