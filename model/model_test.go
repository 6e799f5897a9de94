package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/proctor"
)

func TestNewReport(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	events := []proctor.CheatingEvent{
		{Timestamp: start.Add(5 * time.Second), Category: proctor.GazeMovement},
		{Timestamp: start.Add(7 * time.Second), Category: proctor.LipMovement},
		{Timestamp: start.Add(9 * time.Second), Category: proctor.LipMovement},
	}

	r := NewReport("s-1", Candidate{ID: "c-1", Name: "Sam"}, start, start.Add(time.Hour), events)

	require.Len(t, r.Events, 3)
	assert.Equal(t, ReportEvent{Timestamp: "2025-06-01 10:00:05", Type: "Gaze Movement"}, r.Events[0])
	assert.Equal(t, "Lip Movement", r.Events[2].Type)
	assert.Equal(t, map[string]int{"Gaze Movement": 1, "Lip Movement": 2}, r.Counts)
}

func TestNewReportEmpty(t *testing.T) {
	r := NewReport("s-1", Candidate{}, time.Now(), time.Now(), nil)
	assert.NotNil(t, r.Events)
	assert.Empty(t, r.Counts)
}

func TestCustomErrorUnwraps(t *testing.T) {
	err := GenError("framer", proctor.ErrDeviceUnavailable, nil, "opening %s", "webcam 0")
	assert.True(t, xerrors.Is(err, proctor.ErrDeviceUnavailable))
	assert.Contains(t, err.Error(), "opening webcam 0")
	assert.NotEmpty(t, err.StackTrace)
}
