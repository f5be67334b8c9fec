package motor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderFirstEdgeOnlyRecordsPhase(t *testing.T) {
	r := newTestRig(t, nil)

	r.c.HandleHallEdge(0, true)

	s := r.c.Snapshot()
	assert.Equal(t, int32(0), s.RotorPosition)
	assert.Equal(t, int32(0), s.Location)
	assert.Equal(t, uint32(1), s.Hall1Ticks)
}

func TestDecoderPassiveTrackingFollowsSense(t *testing.T) {
	r := newTestRig(t, nil)

	// Motor is stopped; tension turning the rotor must still be tracked.
	r.feedDown(5) // first edge records phase, four move
	assert.Equal(t, int32(4), r.c.Location())

	r2 := newTestRig(t, nil)
	r2.feedUp(5)
	assert.Equal(t, int32(-4), r2.c.Location())
}

func TestDecoderPhaseJumpOfTwoEmitsNoDelta(t *testing.T) {
	r := newTestRig(t, nil)

	// S1 rise (phase 0) then S1 fall (phase 2): opposite phases, a
	// direction change, not a usable step.
	r.c.HandleHallEdge(0, true)
	r.c.HandleHallEdge(0, false)

	s := r.c.Snapshot()
	assert.Equal(t, int32(0), s.Location)
	assert.Equal(t, int32(2), s.RotorPosition)
	assert.Equal(t, uint32(2), s.Hall1Ticks)
}

func TestDecoderDirectionMismatchDropsEdge(t *testing.T) {
	r := newTestRig(t, nil)

	r.c.MoveUpUntilStall()
	r.c.ExecuteDeferred()
	require.Equal(t, Moving, r.c.Status())

	// Establish a phase, then feed descending-order transitions while
	// commanded up.
	r.c.HandleHallEdge(1, false) // phase 3, fresh
	r.c.HandleHallEdge(0, false) // phase 2, down sense
	r.c.HandleHallEdge(1, true)  // phase 1, down sense

	s := r.c.Snapshot()
	assert.Equal(t, int32(0), s.Location, "mismatched edges must not move the location")
	assert.Equal(t, uint32(2), s.DirErrors)
}

func TestDecoderIntervalNeedsTwoHall1Edges(t *testing.T) {
	r := newTestRig(t, nil)

	r.c.MoveUpUntilStall()
	r.c.ExecuteDeferred()

	r.c.HandleHallEdge(0, true)
	assert.Zero(t, r.c.Snapshot().Hall1IntervalMs, "single edge has nothing to measure against")

	r.ticks(7)
	r.c.HandleHallEdge(0, false)

	s := r.c.Snapshot()
	assert.Equal(t, uint32(7), s.Hall1IntervalMs)
	assert.Zero(t, s.Hall1IdleMs, "edge resets the idle counter")
}

func TestDecoderRPMFromInterval(t *testing.T) {
	r := newTestRig(t, nil)

	r.c.MoveUpUntilStall()
	r.c.ExecuteDeferred()

	// 7 ms between hall-1 edges with a 171:1 gearbox and two edges per
	// motor revolution comes out at 25 rod RPM.
	r.c.HandleHallEdge(0, true)
	r.ticks(7)
	r.c.HandleHallEdge(0, false)

	assert.Equal(t, 25, r.c.RPM())
}

func TestDecoderRPMZeroWithoutInterval(t *testing.T) {
	r := newTestRig(t, nil)
	assert.Zero(t, r.c.RPM())
}

func TestDecoderHall2OnlyCounts(t *testing.T) {
	r := newTestRig(t, nil)

	r.c.HandleHallEdge(1, true)
	r.c.HandleHallEdge(1, false)

	s := r.c.Snapshot()
	assert.Equal(t, uint32(2), s.Hall2Ticks)
	assert.Zero(t, s.Hall1Ticks)
	assert.Zero(t, s.Hall1IntervalMs)
}
