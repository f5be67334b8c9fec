package hal

import (
	"fmt"
	"sync"
)

// MockHAL in-memory implementation for tests and non-ARM hosts
type MockHAL struct {
	gpio *MockGPIO
	adc  *MockADC
	info BoardInfo
}

// NewMockHAL creates a MockHAL
func NewMockHAL() *MockHAL {
	return &MockHAL{
		gpio: &MockGPIO{pins: make(map[int]*MockPin)},
		adc:  &MockADC{volts: make(map[int]float64)},
		info: BoardInfo{
			Model:    BoardUnknown,
			Name:     "Mock Board",
			NumGPIO:  40,
			NumPWM:   4,
			NumADC:   4,
			CPUCores: 4,
		},
	}
}

func (m *MockHAL) GPIO() GPIOProvider { return m.gpio }
func (m *MockHAL) ADC() ADCProvider   { return m.adc }
func (m *MockHAL) Info() BoardInfo    { return m.info }
func (m *MockHAL) Close() error       { return nil }

// MockPin mock pin
type MockPin struct {
	mode     PinMode
	pull     PullMode
	value    bool
	pwm      int
	freq     int
	edge     EdgeMode
	callback func(pin int, value bool)
}

// MockGPIO GPIO mock
type MockGPIO struct {
	pins map[int]*MockPin
	mu   sync.RWMutex
}

func (g *MockGPIO) pin(pin int) *MockPin {
	if g.pins[pin] == nil {
		g.pins[pin] = &MockPin{}
	}
	return g.pins[pin]
}

func (g *MockGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pin(pin).mode = mode
	return nil
}

func (g *MockGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pin(pin).pull = pull
	return nil
}

func (g *MockGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.pins[pin] == nil {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}
	return g.pins[pin].value, nil
}

func (g *MockGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pin(pin).value = value
	return nil
}

func (g *MockGPIO) PWMWrite(pin int, value int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if value < 0 || value > 255 {
		return fmt.Errorf("PWM value must be 0-255")
	}
	g.pin(pin).pwm = value
	return nil
}

func (g *MockGPIO) SetPWMFrequency(pin int, freq int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pin(pin).freq = freq
	return nil
}

func (g *MockGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, value bool)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pin(pin)
	p.edge = edge
	p.callback = callback
	return nil
}

func (g *MockGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pins = make(map[int]*MockPin)
	return nil
}

// TriggerEdge simulates a hardware edge on a watched pin. The registered
// callback runs on the caller's goroutine, like a gpio event thread would.
func (g *MockGPIO) TriggerEdge(pin int, value bool) {
	g.mu.Lock()
	p := g.pin(pin)
	p.value = value
	cb := p.callback
	g.mu.Unlock()
	if cb != nil {
		cb(pin, value)
	}
}

// PinValue returns the last written digital level of a pin.
func (g *MockGPIO) PinValue(pin int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.pins[pin] == nil {
		return false
	}
	return g.pins[pin].value
}

// PinPWM returns the last written PWM duty cycle of a pin.
func (g *MockGPIO) PinPWM(pin int) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.pins[pin] == nil {
		return 0
	}
	return g.pins[pin].pwm
}

// MockADC ADC mock
type MockADC struct {
	volts map[int]float64
	mu    sync.RWMutex
}

// SetVoltage sets the voltage a channel will report.
func (a *MockADC) SetVoltage(channel int, volts float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volts[channel] = volts
}

func (a *MockADC) ReadChannel(channel int) (int, float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v := a.volts[channel]
	return int(v * 1000), v, nil
}

func (a *MockADC) Close() error { return nil }
