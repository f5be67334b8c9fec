//go:build linux
// +build linux

package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// RaspberryPiHAL drives the broadcom GPIO block through go-rpio and an
// external ADS1115 ADC through periph.io.
type RaspberryPiHAL struct {
	gpio *rpiGPIO
	adc  *rpiADC
	info BoardInfo
}

// NewRaspberryPiHAL memory-maps the GPIO block and initializes periph.io.
func NewRaspberryPiHAL(i2cBus string, adcAddr uint16) (*RaspberryPiHAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w", err)
	}

	h := &RaspberryPiHAL{
		gpio: &rpiGPIO{
			pins:     make(map[int]rpio.Pin),
			watchers: make(map[int]*edgeWatcher),
		},
		info: DetectBoard(),
	}

	adc, err := newRPiADC(i2cBus, adcAddr)
	if err != nil {
		// A board without the ADC wired up still gets working GPIO.
		h.adc = &rpiADC{}
	} else {
		h.adc = adc
		h.info.NumADC = 4
	}

	return h, nil
}

func (h *RaspberryPiHAL) GPIO() GPIOProvider { return h.gpio }
func (h *RaspberryPiHAL) ADC() ADCProvider   { return h.adc }
func (h *RaspberryPiHAL) Info() BoardInfo    { return h.info }

func (h *RaspberryPiHAL) Close() error {
	h.gpio.Close()
	h.adc.Close()
	return rpio.Close()
}

type edgeWatcher struct {
	stop chan struct{}
}

type rpiGPIO struct {
	mu       sync.Mutex
	pins     map[int]rpio.Pin
	watchers map[int]*edgeWatcher
}

func (g *rpiGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := rpio.Pin(pin)
	g.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		p.Pwm()
		p.Freq(19200000 / 255)
		p.DutyCycle(0, 255)
	default:
		return fmt.Errorf("unsupported pin mode: %v", mode)
	}
	return nil
}

func (g *rpiGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}
	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}
	return nil
}

func (g *rpiGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}
	return p.Read() == rpio.High, nil
}

func (g *rpiGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (g *rpiGPIO) PWMWrite(pin int, value int) error {
	if value < 0 || value > 255 {
		return fmt.Errorf("PWM value must be 0-255")
	}
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}
	p.DutyCycle(uint32(value), 255)
	return nil
}

func (g *rpiGPIO) SetPWMFrequency(pin int, freq int) error {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}
	p.Freq(freq * 255)
	return nil
}

// WatchEdge polls the hardware edge-detect latch. go-rpio exposes the
// bcm283x event register but no event fd, so a tight poll loop stands in
// for the interrupt line. Hall pulses on a blind motor top out around
// 1 kHz, well inside what the latch plus a 200us poll can catch.
func (g *rpiGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, value bool)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}

	var rpioEdge rpio.Edge
	switch edge {
	case EdgeRising:
		rpioEdge = rpio.RiseEdge
	case EdgeFalling:
		rpioEdge = rpio.FallEdge
	case EdgeBoth:
		rpioEdge = rpio.AnyEdge
	default:
		return fmt.Errorf("unsupported edge mode: %v", edge)
	}
	p.Detect(rpioEdge)

	if w := g.watchers[pin]; w != nil {
		close(w.stop)
	}
	w := &edgeWatcher{stop: make(chan struct{})}
	g.watchers[pin] = w

	go func() {
		ticker := time.NewTicker(200 * time.Microsecond)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				p.Detect(rpio.NoEdge)
				return
			case <-ticker.C:
				if p.EdgeDetected() {
					callback(pin, p.Read() == rpio.High)
				}
			}
		}
	}()

	return nil
}

func (g *rpiGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for pin, w := range g.watchers {
		close(w.stop)
		delete(g.watchers, pin)
	}
	g.pins = make(map[int]rpio.Pin)
	return nil
}

// rpiADC wraps an ADS1115 on the I2C bus. A zero rpiADC reports not-wired.
type rpiADC struct {
	mu  sync.Mutex
	dev *ads1x15.Dev
}

func newRPiADC(bus string, addr uint16) (*rpiADC, error) {
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", bus, err)
	}
	opts := ads1x15.DefaultOpts
	opts.I2cAddress = addr
	dev, err := ads1x15.NewADS1115(b, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ADS1115: %w", err)
	}
	return &rpiADC{dev: dev}, nil
}

func (a *rpiADC) ReadChannel(channel int) (int, float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return 0, 0, fmt.Errorf("ADC not available")
	}
	c, err := a.dev.PinForChannel(ads1x15.Channel(channel), 4096*physic.MilliVolt, 128*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get channel %d: %w", channel, err)
	}
	defer c.Halt()
	sample, err := c.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read channel %d: %w", channel, err)
	}
	return int(sample.Raw), float64(sample.V) / float64(physic.Volt), nil
}

func (a *rpiADC) Close() error { return nil }
