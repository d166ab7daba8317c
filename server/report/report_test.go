package report

import (
	"testing"
	"time"

	"github.com/ctolnik/activity-tracker/agent/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC) // a Wednesday

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func sessions() []activity.Session {
	return []activity.Session{
		{ID: "1", AppIdentity: "code", Category: "Development", Start: at(-1, 0), End: at(1, 0)},
		{ID: "2", AppIdentity: "firefox", Category: "Browser", Start: at(1, 0), End: at(1, 30)},
		{ID: "3", AppIdentity: "code", Category: "Development", Start: at(1, 30), End: at(2, 0), Idle: true},
		{ID: "4", AppIdentity: "slack", Category: "Communication", Start: at(2, 0), End: at(2, 30)},
		{ID: "5", AppIdentity: "goland", Category: "Development", Start: at(23, 30), End: at(24, 30)},
	}
}

func TestSummarizeByApp(t *testing.T) {
	from, to := Day(day)
	sum := Summarize(sessions(), from, to, ByApp)

	assert.Equal(t, 2*time.Hour+30*time.Minute, sum.Active)
	assert.Equal(t, 30*time.Minute, sum.Idle)
	assert.Equal(t, 1800.0, sum.IdleSeconds)

	require.Len(t, sum.Items, 4)
	assert.Equal(t, "code", sum.Items[0].Key)
	assert.Equal(t, time.Hour, sum.Items[0].Duration, "clipped to the start of the day")
	assert.Equal(t, 1, sum.Items[0].Sessions)
	assert.InDelta(t, 0.4, sum.Items[0].Share, 1e-9)

	// Equal durations sort by key.
	assert.Equal(t, []string{"code", "firefox", "goland", "slack"},
		[]string{sum.Items[0].Key, sum.Items[1].Key, sum.Items[2].Key, sum.Items[3].Key})
	assert.Equal(t, 30*time.Minute, sum.Items[2].Duration, "clipped to the end of the day")
}

func TestSummarizeByCategory(t *testing.T) {
	from, to := Day(day)
	sum := Summarize(sessions(), from, to, ByCategory)

	require.Len(t, sum.Items, 3)
	assert.Equal(t, "Development", sum.Items[0].Key)
	assert.Equal(t, 90*time.Minute, sum.Items[0].Duration)
	assert.Equal(t, 2, sum.Items[0].Sessions)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, at(0, 0), at(1, 0), ByApp)
	assert.NotNil(t, sum.Items)
	assert.Empty(t, sum.Items)
	assert.Zero(t, sum.Active)
}

func TestSummarizeMissingCategory(t *testing.T) {
	sum := Summarize([]activity.Session{{ID: "1", AppIdentity: "x", Start: at(0, 0), End: at(0, 10)}}, at(0, 0), at(1, 0), ByCategory)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, "Unknown", sum.Items[0].Key)
}

func TestWindows(t *testing.T) {
	noon := at(12, 0)

	from, to := Day(noon)
	assert.Equal(t, day, from)
	assert.Equal(t, day.AddDate(0, 0, 1), to)

	from, to = Week(noon)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), to)

	sunday := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	from, _ = Week(sunday)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), from)

	from, to = Month(noon)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), to)

	_, _, err := Window("year", noon)
	assert.Error(t, err)
	from, _, err = Window(Weekly, noon)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, from.Weekday())
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy("")
	require.NoError(t, err)
	assert.Equal(t, ByApp, g)

	g, err = ParseGroupBy("category")
	require.NoError(t, err)
	assert.Equal(t, ByCategory, g)

	_, err = ParseGroupBy("title")
	assert.Error(t, err)
}
