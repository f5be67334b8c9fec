package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGPIOEdgeInjection(t *testing.T) {
	h := NewMockHAL()
	gpio := h.GPIO().(*MockGPIO)

	require.NoError(t, gpio.SetMode(17, Input))

	var got []bool
	require.NoError(t, gpio.WatchEdge(17, EdgeBoth, func(pin int, value bool) {
		assert.Equal(t, 17, pin)
		got = append(got, value)
	}))

	gpio.TriggerEdge(17, true)
	gpio.TriggerEdge(17, false)

	assert.Equal(t, []bool{true, false}, got)
	assert.False(t, gpio.PinValue(17))
}

func TestMockGPIOPWMRange(t *testing.T) {
	h := NewMockHAL()
	gpio := h.GPIO().(*MockGPIO)

	require.NoError(t, gpio.SetMode(12, PWM))
	require.NoError(t, gpio.PWMWrite(12, 200))
	assert.Equal(t, 200, gpio.PinPWM(12))

	assert.Error(t, gpio.PWMWrite(12, 256))
	assert.Error(t, gpio.PWMWrite(12, -1))
}

func TestMockADCReportsSetVoltage(t *testing.T) {
	h := NewMockHAL()
	adc := h.ADC().(*MockADC)

	adc.SetVoltage(2, 3.3)
	_, v, err := adc.ReadChannel(2)
	require.NoError(t, err)
	assert.InDelta(t, 3.3, v, 1e-9)
}
