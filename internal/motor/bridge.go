package motor

import (
	"fmt"

	"github.com/openblinds/blindctl/internal/hal"
)

// BridgePins maps the four H-bridge outputs. Low1/Low2 are the low-side
// PWM channels, High1/High2 the high-side gate GPIOs.
type BridgePins struct {
	Low1  int
	Low2  int
	High1 int
	High2 int
}

// Bridge owns the H-bridge outputs. No other component writes these pins.
type Bridge struct {
	gpio hal.GPIOProvider
	pins BridgePins
}

// NewBridge configures the bridge pins and leaves the bridge de-energized.
func NewBridge(gpio hal.GPIOProvider, pins BridgePins, pwmFreq int) (*Bridge, error) {
	if pwmFreq <= 0 {
		pwmFreq = 1000
	}
	for _, p := range []int{pins.Low1, pins.Low2} {
		if err := gpio.SetMode(p, hal.PWM); err != nil {
			return nil, fmt.Errorf("failed to set PWM mode on pin %d: %w", p, err)
		}
		if err := gpio.SetPWMFrequency(p, pwmFreq); err != nil {
			return nil, fmt.Errorf("failed to set PWM frequency on pin %d: %w", p, err)
		}
	}
	for _, p := range []int{pins.High1, pins.High2} {
		if err := gpio.SetMode(p, hal.Output); err != nil {
			return nil, fmt.Errorf("failed to set output mode on pin %d: %w", p, err)
		}
	}

	b := &Bridge{gpio: gpio, pins: pins}
	b.Deenergize()
	return b, nil
}

// Energize closes one half of the bridge. Up drives the LOW2 PWM channel
// with the HIGH1 gate set, down drives LOW1 with HIGH2. The opposite half
// is forced off first so both sides are never conducting together.
func (b *Bridge) Energize(dir Direction, duty uint8) {
	switch dir {
	case Up:
		b.gpio.DigitalWrite(b.pins.High2, false)
		b.gpio.PWMWrite(b.pins.Low1, 0)
		b.gpio.DigitalWrite(b.pins.High1, true)
		b.gpio.PWMWrite(b.pins.Low2, int(duty))
	case Down:
		b.gpio.DigitalWrite(b.pins.High1, false)
		b.gpio.PWMWrite(b.pins.Low2, 0)
		b.gpio.DigitalWrite(b.pins.High2, true)
		b.gpio.PWMWrite(b.pins.Low1, int(duty))
	}
}

// SetDuty updates the duty cycle on the active low-side channel.
func (b *Bridge) SetDuty(dir Direction, duty uint8) {
	switch dir {
	case Up:
		b.gpio.PWMWrite(b.pins.Low2, int(duty))
	case Down:
		b.gpio.PWMWrite(b.pins.Low1, int(duty))
	}
}

// Deenergize zeroes both PWM channels and opens both high-side gates.
func (b *Bridge) Deenergize() {
	b.gpio.PWMWrite(b.pins.Low1, 0)
	b.gpio.PWMWrite(b.pins.Low2, 0)
	b.gpio.DigitalWrite(b.pins.High1, false)
	b.gpio.DigitalWrite(b.pins.High2, false)
}
