package motor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openblinds/blindctl/internal/settings"
)

func TestGoToHalfStopsJustBeforeTarget(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})
	r.c.SetLocation(2000)

	r.c.MoveToPosition100(50)
	r.c.ExecuteDeferred()

	s := r.c.Snapshot()
	require.Equal(t, Moving, s.Status)
	require.Equal(t, Up, s.Direction)
	require.Equal(t, int32(1000), s.TargetLocation)

	for i := 0; i < 5000 && r.c.Status() != Stopped; i++ {
		r.feedUp(1)
	}

	s = r.c.Snapshot()
	assert.Equal(t, Stopped, s.Status)
	assert.Equal(t, None, s.Direction)
	assert.Contains(t, []int32{1000, 1001}, s.Location)
	assert.Zero(t, s.CurrPWM)
	r.bridgeDead(t)
}

func TestAutoCalibrationAtBoot(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyAutoCalibration: 1})

	s := r.c.Snapshot()
	require.True(t, s.Calibrating)
	require.Equal(t, targetUntilStall, s.TargetLocation)

	r.c.ExecuteDeferred()
	require.Equal(t, Moving, r.c.Status())
	require.Equal(t, Up, r.c.Snapshot().Direction)

	// No hall edges: ride out the grace period plus the hall timeout.
	r.ticks(movementGracePeriodMs + hallTimeoutMs + 2)
	require.Equal(t, CalibratingEndPoint, r.c.Status())
	r.bridgeDead(t)

	// The settling window ends with a zeroed, trusted location.
	r.ticks(endpointCalibrationPeriodMs + 2)
	s = r.c.Snapshot()
	assert.Equal(t, Stopped, s.Status)
	assert.False(t, s.Calibrating)
	assert.Zero(t, s.Location)
}

func TestStallWhileDescendingIsAFault(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	require.Equal(t, Down, r.c.Snapshot().Direction)

	r.ticks(movementGracePeriodMs + hallTimeoutMs + 2)

	assert.Equal(t, StatusError, r.c.Status())
	r.bridgeDead(t)

	// Further motion commands are refused until a stop clears the fault.
	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	assert.Equal(t, StatusError, r.c.Status())

	r.c.Defer(CmdStop)
	r.c.ExecuteDeferred()
	assert.Equal(t, Stopped, r.c.Status())

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	assert.Equal(t, Moving, r.c.Status())
}

func TestStallDetectionSuppressedDuringGracePeriod(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()

	r.ticks(movementGracePeriodMs - 1)
	assert.Equal(t, Moving, r.c.Status(), "no stall inside the grace period")
}

func TestStallWhileStoppingIsACleanStop(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{
		settings.KeyMaxCurtainLength: 2000,
		settings.KeyDefaultSpeed:     18,
	})
	r.c.SetLocation(100)
	r.c.MoveToLocation(130)
	r.c.ExecuteDeferred()

	// Drive into the slowdown window so the status is Stopping.
	for r.c.Status() != Stopping {
		r.feedDown(1)
	}

	// While decelerating the ordinary hall timeout is forgiven...
	r.ticks(movementGracePeriodMs + hallTimeoutMs + 2)
	require.Equal(t, Stopping, r.c.Status())

	// ...but the longer stopping timeout ends in a clean stop.
	r.ticks(hallTimeoutWhileStoppingMs)
	assert.Equal(t, Stopped, r.c.Status())
	r.bridgeDead(t)
}

func TestUpUntilStallEndsInEndpointCalibration(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})
	r.c.SetLocation(40)

	r.c.MoveUpUntilStall()
	r.c.ExecuteDeferred()

	// Edges all the way past the soft top: the sentinel target must
	// never trip the target-reached branch or the slowdown profile.
	r.feedUp(61)
	s := r.c.Snapshot()
	require.Equal(t, Moving, s.Status)
	require.Equal(t, int32(-20), s.Location)

	r.ticks(movementGracePeriodMs + hallTimeoutMs + 2)
	require.Equal(t, CalibratingEndPoint, r.c.Status())

	r.ticks(endpointCalibrationPeriodMs + 2)
	s = r.c.Snapshot()
	assert.Equal(t, Stopped, s.Status)
	assert.Zero(t, s.Location)
}

func TestOverridePastMaxReportsClampedPosition(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})
	r.c.SetLocation(2000)

	r.c.MoveByDegrees(6, true)
	r.c.ExecuteDeferred()
	require.Equal(t, Down, r.c.Snapshot().Direction)

	for r.c.Status() != Stopped {
		r.feedDown(1)
	}

	s := r.c.Snapshot()
	assert.Greater(t, s.Location, int32(2000))
	assert.Equal(t, 100.0, s.Position100)
}

func TestDeferredMailboxLastWriteWins(t *testing.T) {
	r := newTestRig(t, nil)

	r.c.Defer(CmdUp)
	r.c.Defer(CmdStop)

	assert.Equal(t, CmdStop, r.c.takeDeferred())
	assert.Equal(t, CmdNone, r.c.takeDeferred())
}

func TestStopResetsSpeedState(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	r.feedDown(10)
	require.NotZero(t, r.c.Snapshot().Hall1Ticks)

	r.c.Stop()

	s := r.c.Snapshot()
	assert.Equal(t, Stopped, s.Status)
	assert.Zero(t, s.CurrPWM)
	assert.Zero(t, s.TargetSpeed)
	assert.Zero(t, s.Hall1Ticks)
	assert.Zero(t, s.Hall2Ticks)
	assert.Zero(t, s.Hall1IntervalMs)
	r.bridgeDead(t)
}

func TestEnergizeSetsBridgeOutputs(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()

	// Down drives the LOW1 PWM channel with the HIGH2 gate closed.
	assert.Equal(t, int(initialPWM), r.gpio.PinPWM(testPins.Bridge.Low1))
	assert.Zero(t, r.gpio.PinPWM(testPins.Bridge.Low2))
	assert.True(t, r.gpio.PinValue(testPins.Bridge.High2))
	assert.False(t, r.gpio.PinValue(testPins.Bridge.High1))

	r.c.Stop()
	r.c.SetLocation(1000)
	r.c.MoveUpUntilStall()
	r.c.ExecuteDeferred()

	// Up drives LOW2 with HIGH1.
	assert.Equal(t, int(initialPWM), r.gpio.PinPWM(testPins.Bridge.Low2))
	assert.Zero(t, r.gpio.PinPWM(testPins.Bridge.Low1))
	assert.True(t, r.gpio.PinValue(testPins.Bridge.High1))
	assert.False(t, r.gpio.PinValue(testPins.Bridge.High2))
}

type stubPower struct{ volts16 uint8 }

func (s stubPower) VoltageSixteenths() uint8 { return s.volts16 }

func TestUnderVoltageRefusesToEnergize(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{
		settings.KeyMaxCurtainLength: 2000,
		settings.KeyMinimumVoltage:   112, // 7.0 V
	})
	r.c.power = stubPower{volts16: 96} // 6.0 V

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	assert.Equal(t, Stopped, r.c.Status(), "must not energize below minimum voltage")
	r.bridgeDead(t)

	// Healthy supply allows movement; zero threshold disables the check.
	r.c.power = stubPower{volts16: 128}
	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	assert.Equal(t, Moving, r.c.Status())
}

func TestSessionSpeedAppliesToRunningMovement(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	require.Equal(t, uint8(settings.DefaultSpeed), r.c.Snapshot().TargetSpeed)

	r.c.SetSessionSpeed(10)
	assert.Equal(t, uint8(10), r.c.Snapshot().TargetSpeed)

	// Session speed does not persist.
	v, err := r.store.Read(settings.KeyDefaultSpeed)
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultSpeed, v)
}

func TestLimitCommandsPersistCurrentLocation(t *testing.T) {
	r := newTestRig(t, nil)
	r.c.SetLocation(1500)

	require.NoError(t, r.c.SetMaxCurtainLengthHere())
	v, err := r.store.Read(settings.KeyMaxCurtainLength)
	require.NoError(t, err)
	assert.Equal(t, uint16(1500), v)
	assert.Equal(t, int32(1500), r.c.Snapshot().MaxCurtainLength)

	r.c.SetLocation(1600)
	require.NoError(t, r.c.SetFullCurtainLengthHere())
	full, err := r.store.Read(settings.KeyFullCurtainLength)
	require.NoError(t, err)
	max, err := r.store.Read(settings.KeyMaxCurtainLength)
	require.NoError(t, err)
	assert.Equal(t, uint16(1600), full)
	assert.Equal(t, uint16(1600), max, "setting the full length resets the soft limit too")
}

func TestLimitCommandsIgnoredWhileMoving(t *testing.T) {
	r := newTestRig(t, map[settings.Key]uint16{settings.KeyMaxCurtainLength: 2000})
	r.store.SetWriteGate(r.c.IsStopped)

	r.c.MoveDownToMax()
	r.c.ExecuteDeferred()
	require.Equal(t, Moving, r.c.Status())

	require.NoError(t, r.c.SetMaxCurtainLengthHere())
	v, err := r.store.Read(settings.KeyMaxCurtainLength)
	require.NoError(t, err)
	assert.Equal(t, uint16(2000), v, "limit must not change while moving")
}
