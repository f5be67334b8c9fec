package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunChecksReportsResults(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterCheck("ok", func(context.Context) (Status, string) {
		return StatusHealthy, "fine"
	})
	h.RegisterCheck("warn", func(context.Context) (Status, string) {
		return StatusDegraded, "wobbly"
	})

	results := h.RunChecks(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["ok"].Status)
	assert.Equal(t, StatusDegraded, results["warn"].Status)
	assert.Equal(t, "wobbly", results["warn"].Message)
	assert.False(t, results["warn"].LastCheck.IsZero())
}

func TestOverallWorstStatusWins(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterCheck("ok", func(context.Context) (Status, string) {
		return StatusHealthy, ""
	})
	assert.Equal(t, StatusHealthy, h.Overall(context.Background()))

	h.RegisterCheck("warn", func(context.Context) (Status, string) {
		return StatusDegraded, ""
	})
	assert.Equal(t, StatusDegraded, h.Overall(context.Background()))

	h.RegisterCheck("bad", func(context.Context) (Status, string) {
		return StatusUnhealthy, ""
	})
	assert.Equal(t, StatusUnhealthy, h.Overall(context.Background()))
}
