package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neur0map/yinx/internal/types"
)

func TestFormatSessionRunning(t *testing.T) {
	s := types.NewSession("engagement-alpha")
	s.CaptureCount = 3

	line := formatSession(s)
	assert.Contains(t, line, "engagement-alpha")
	assert.Contains(t, line, "active")
	assert.Contains(t, line, "captures=3")
	assert.Contains(t, line, "ended=running")
}

func TestFormatSessionStopped(t *testing.T) {
	s := types.NewSession("done")
	stopped := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	s.StoppedAt = &stopped
	s.Status = types.SessionStatusStopped

	line := formatSession(s)
	assert.Contains(t, line, "stopped")
	assert.Contains(t, line, "2026-02-03T10:00:00Z")
}
