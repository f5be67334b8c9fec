package motor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openblinds/blindctl/internal/hal"
	"github.com/openblinds/blindctl/internal/settings"
)

var testPins = Config{
	Hall1Pin: 17,
	Hall2Pin: 27,
	Bridge:   BridgePins{Low1: 12, Low2: 13, High1: 23, High2: 24},
}

// edge is one hall transition as fed to the decoder.
type edge struct {
	sensor int
	level  bool
}

// Quadrature phase sequences. Driving up: S1 rise, S2 rise, S1 fall,
// S2 fall. Driving down: S2 rise, S1 rise, S2 fall, S1 fall.
var (
	upSeq   = []edge{{0, true}, {1, true}, {0, false}, {1, false}}
	downSeq = []edge{{1, true}, {0, true}, {1, false}, {0, false}}
)

type testRig struct {
	c     *Controller
	gpio  *hal.MockGPIO
	store *settings.Store
	// rolling index into the phase sequence
	upIdx, downIdx int
}

func newTestRig(t *testing.T, presets map[settings.Key]uint16) *testRig {
	t.Helper()

	h := hal.NewMockHAL()
	gpio := h.GPIO().(*hal.MockGPIO)

	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Most tests want a cold boot without auto-calibration kicking in.
	if _, ok := presets[settings.KeyAutoCalibration]; !ok {
		require.NoError(t, store.Write(settings.KeyAutoCalibration, 0))
	}
	for k, v := range presets {
		require.NoError(t, store.Write(k, v))
	}

	c, err := NewController(gpio, testPins, store, nil)
	require.NoError(t, err)
	require.NoError(t, c.Init())

	return &testRig{c: c, gpio: gpio, store: store}
}

// feedUp feeds n edges of the ascending phase sequence.
func (r *testRig) feedUp(n int) {
	for i := 0; i < n; i++ {
		e := upSeq[r.upIdx%len(upSeq)]
		r.upIdx++
		r.c.HandleHallEdge(e.sensor, e.level)
	}
}

// feedDown feeds n edges of the descending phase sequence.
func (r *testRig) feedDown(n int) {
	for i := 0; i < n; i++ {
		e := downSeq[r.downIdx%len(downSeq)]
		r.downIdx++
		r.c.HandleHallEdge(e.sensor, e.level)
	}
}

// ticks advances the 1 ms clock n times.
func (r *testRig) ticks(n int) {
	for i := 0; i < n; i++ {
		r.c.tickStall()
	}
}

// bridgeDead asserts both PWM channels are zeroed and both gates open.
func (r *testRig) bridgeDead(t *testing.T) {
	t.Helper()
	require.Zero(t, r.gpio.PinPWM(testPins.Bridge.Low1))
	require.Zero(t, r.gpio.PinPWM(testPins.Bridge.Low2))
	require.False(t, r.gpio.PinValue(testPins.Bridge.High1))
	require.False(t, r.gpio.PinValue(testPins.Bridge.High2))
}
