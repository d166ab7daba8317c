package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarkerVersionSurvivesClockStepBack(t *testing.T) {
	clock := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	db := &ClickHouse{now: func() time.Time { return clock }}

	v1 := db.version()
	assert.Equal(t, uint64(clock.UnixNano()), v1)

	v2 := db.version()
	assert.Greater(t, v2, v1, "same clock reading")

	clock = clock.Add(-time.Hour)
	v3 := db.version()
	assert.Greater(t, v3, v2, "clock stepped back")

	clock = clock.Add(2 * time.Hour)
	assert.Equal(t, uint64(clock.UnixNano()), db.version(), "follows the clock again once it is ahead")
}

func TestMarkerVersionFloorFromStore(t *testing.T) {
	clock := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	db := &ClickHouse{now: func() time.Time { return clock }}

	stored := uint64(clock.Add(time.Minute).UnixNano())
	db.observeVersion(stored)
	db.observeVersion(stored - 10)

	assert.Equal(t, stored+1, db.version())
}
