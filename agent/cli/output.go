package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/ctolnik/activity-tracker/server/report"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

const (
	timeLayout  = "2006-01-02 15:04:05"
	maxTitleLen = 50
)

func printSessions(w io.Writer, sessions []activity.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No sessions in range."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-19s  %-19s  %9s  %-20s  %-14s  %s",
		"START", "END", "DURATION", "APP", "CATEGORY", "TITLE")))
	var total time.Duration
	for _, s := range sessions {
		line := fmt.Sprintf("%-19s  %-19s  %9s  %-20s  %-14s  %s",
			s.Start.Local().Format(timeLayout),
			s.End.Local().Format(timeLayout),
			formatDuration(s.Duration()),
			truncate(s.AppIdentity, 20),
			truncate(s.Category, 14),
			truncate(s.WindowTitle, maxTitleLen))
		if s.Idle {
			line = idleStyle.Render(line)
		}
		fmt.Fprintln(w, line)
		total += s.Duration()
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d sessions, %s", len(sessions), formatDuration(total))))
}

func printUsage(w io.Writer, sum report.Summary) {
	fmt.Fprintf(w, "%s %s - %s\n",
		headerStyle.Render("Usage"),
		sum.From.Format(timeLayout),
		sum.To.Format(timeLayout))
	fmt.Fprintf(w, "Active: %s  Idle: %s\n\n", formatDuration(sum.Active), formatDuration(sum.Idle))

	if len(sum.Items) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No activity recorded."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-24s  %9s  %6s  %8s",
		strings.ToUpper(string(sum.GroupBy)), "TIME", "SHARE", "SESSIONS")))
	for _, u := range sum.Items {
		fmt.Fprintf(w, "%-24s  %9s  %5.1f%%  %8d\n",
			truncate(u.Key, 24), formatDuration(u.Duration), u.Share*100, u.Sessions)
	}
}

func printEvents(w io.Writer, events []activity.SystemEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No events in range."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-19s  %-10s  %s", "TIME", "KIND", "DETAIL")))
	for _, e := range events {
		fmt.Fprintf(w, "%-19s  %-10s  %s\n", e.At.Local().Format(timeLayout), e.Kind, e.Detail)
	}
}

// formatDuration renders d rounded to the second, e.g. 1h02m05s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
