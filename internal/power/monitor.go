package power

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/hal"
	"github.com/openblinds/blindctl/internal/logger"
)

// Battery chemistry window for the percent estimate. The pack is two
// li-ion cells behind a regulator; outside this window the estimate
// saturates.
const (
	batteryEmptyVolts = 5.6
	batteryFullVolts  = 8.4
)

// Config for the sampling loop.
type Config struct {
	Channel        int
	Divider        float64 // external voltage-divider ratio
	SampleInterval time.Duration
}

// Monitor periodically samples the supply rail through the ADC and caches
// the latest reading for status replies and the under-voltage gate.
type Monitor struct {
	adc hal.ADCProvider
	cfg Config
	log *zap.SugaredLogger

	mu        sync.RWMutex
	volts     float64
	available bool
}

// NewMonitor creates a monitor over an ADC channel.
func NewMonitor(adc hal.ADCProvider, cfg Config) *Monitor {
	if cfg.Divider <= 0 {
		cfg.Divider = 1
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}
	return &Monitor{
		adc: adc,
		cfg: cfg,
		log: logger.Sugar().With("component", "power"),
	}
}

// Run samples until ctx is cancelled. The first sample happens
// immediately so boot-time under-voltage checks have data.
func (m *Monitor) Run(ctx context.Context) {
	m.sample()

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	_, v, err := m.adc.ReadChannel(m.cfg.Channel)
	if err != nil {
		m.mu.Lock()
		m.available = false
		m.mu.Unlock()
		m.log.Debugw("ADC sample failed", "error", err)
		return
	}

	supply := v * m.cfg.Divider
	m.mu.Lock()
	m.volts = supply
	m.available = true
	m.mu.Unlock()
}

// Voltage returns the last sampled supply voltage in volts.
func (m *Monitor) Voltage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volts
}

// Available reports whether the ADC is delivering samples.
func (m *Monitor) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// VoltageSixteenths returns the supply voltage in units of 1/16 V, the
// unit the minimum-voltage setting is stored in.
func (m *Monitor) VoltageSixteenths() uint8 {
	v := m.Voltage() * 16
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// BatteryPercent returns a linear charge estimate from the supply
// voltage. Coarse on purpose; the host side owns any better model.
func (m *Monitor) BatteryPercent() uint8 {
	v := m.Voltage()
	if v <= batteryEmptyVolts {
		return 0
	}
	if v >= batteryFullVolts {
		return 100
	}
	return uint8(100 * (v - batteryEmptyVolts) / (batteryFullVolts - batteryEmptyVolts))
}
