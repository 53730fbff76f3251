package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeadStatus_Valid(t *testing.T) {
	for _, s := range []LeadStatus{
		LeadStatusNew, LeadStatusScheduled, LeadStatusCalled,
		LeadStatusQualified, LeadStatusDisqualified,
		LeadStatusContacted, LeadStatusConverted, LeadStatusFailed,
	} {
		assert.True(t, s.Valid(), "status %s", s)
	}
	assert.False(t, LeadStatus("pending").Valid())
	assert.False(t, LeadStatus("").Valid())
}

func TestLeadStatus_Terminal(t *testing.T) {
	assert.True(t, LeadStatusConverted.Terminal())
	// Disqualified leads can be re-queued manually.
	assert.False(t, LeadStatusDisqualified.Terminal())
	assert.False(t, LeadStatusQualified.Terminal())
	assert.False(t, LeadStatusFailed.Terminal())
}

func TestBucketTimeOfDay(t *testing.T) {
	tests := []struct {
		hour int
		want TimeOfDay
	}{
		{5, TimeOfDayMorning},
		{11, TimeOfDayMorning},
		{12, TimeOfDayAfternoon},
		{16, TimeOfDayAfternoon},
		{17, TimeOfDayEvening},
		{21, TimeOfDayEvening},
		{22, TimeOfDayLateNight},
		{2, TimeOfDayLateNight},
		{4, TimeOfDayLateNight},
	}
	for _, tt := range tests {
		at := time.Date(2026, 2, 10, tt.hour, 30, 0, 0, time.UTC)
		assert.Equal(t, tt.want, BucketTimeOfDay(at), "hour %d", tt.hour)
	}
}

func TestCheckpoint_Progress(t *testing.T) {
	cp := Checkpoint{
		RunID:    "run-1",
		LeadKeys: []string{"a", "b", "c"},
	}
	assert.Equal(t, 3, cp.Remaining())
	assert.False(t, cp.Done())

	cp.NextIndex = 2
	assert.Equal(t, 1, cp.Remaining())

	cp.NextIndex = 3
	assert.Zero(t, cp.Remaining())
	assert.True(t, cp.Done())
}
