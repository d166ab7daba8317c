// Package report aggregates stored sessions into usage summaries for the API
// and the CLI.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
)

type GroupBy string

const (
	ByApp      GroupBy = "app"
	ByCategory GroupBy = "category"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(s) {
	case "", ByApp:
		return ByApp, nil
	case ByCategory:
		return ByCategory, nil
	default:
		return "", fmt.Errorf("unknown grouping %q, use app or category", s)
	}
}

// Usage is the active time spent in one app or category.
type Usage struct {
	Key      string        `json:"key"`
	Duration time.Duration `json:"-"`
	Seconds  float64       `json:"seconds"`
	Sessions int           `json:"sessions"`
	Share    float64       `json:"share"`
}

type Summary struct {
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
	GroupBy       GroupBy       `json:"group_by"`
	Active        time.Duration `json:"-"`
	Idle          time.Duration `json:"-"`
	ActiveSeconds float64       `json:"active_seconds"`
	IdleSeconds   float64       `json:"idle_seconds"`
	Items         []Usage       `json:"items"`
}

// Summarize clips sessions to [from, to) and sums active time per app or
// category, longest first. Idle time is only counted in Summary.Idle.
func Summarize(sessions []activity.Session, from, to time.Time, groupBy GroupBy) Summary {
	sum := Summary{From: from, To: to, GroupBy: groupBy, Items: make([]Usage, 0)}
	byKey := make(map[string]*Usage)

	for _, s := range sessions {
		d := clip(s, from, to)
		if d <= 0 {
			continue
		}
		if s.Idle {
			sum.Idle += d
			continue
		}
		sum.Active += d

		key := s.AppIdentity
		if groupBy == ByCategory {
			key = s.Category
			if key == "" {
				key = "Unknown"
			}
		}
		u, ok := byKey[key]
		if !ok {
			u = &Usage{Key: key}
			byKey[key] = u
		}
		u.Duration += d
		u.Sessions++
	}

	for _, u := range byKey {
		u.Seconds = u.Duration.Seconds()
		if sum.Active > 0 {
			u.Share = float64(u.Duration) / float64(sum.Active)
		}
		sum.Items = append(sum.Items, *u)
	}
	sort.Slice(sum.Items, func(i, j int) bool {
		if sum.Items[i].Duration != sum.Items[j].Duration {
			return sum.Items[i].Duration > sum.Items[j].Duration
		}
		return sum.Items[i].Key < sum.Items[j].Key
	})

	sum.ActiveSeconds = sum.Active.Seconds()
	sum.IdleSeconds = sum.Idle.Seconds()
	return sum
}

func clip(s activity.Session, from, to time.Time) time.Duration {
	start, end := s.Start, s.End
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	return end.Sub(start)
}

// Day returns the calendar day containing t, in t's location.
func Day(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// Week returns the Monday-based week containing t.
func Week(t time.Time) (time.Time, time.Time) {
	day, _ := Day(t)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// Month returns the calendar month containing t.
func Month(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// Period names a report window.
type Period string

const (
	Daily   Period = "day"
	Weekly  Period = "week"
	Monthly Period = "month"
)

// Window returns the period containing t.
func Window(p Period, t time.Time) (time.Time, time.Time, error) {
	switch p {
	case "", Daily:
		from, to := Day(t)
		return from, to, nil
	case Weekly:
		from, to := Week(t)
		return from, to, nil
	case Monthly:
		from, to := Month(t)
		return from, to, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q, use day, week or month", p)
	}
}
