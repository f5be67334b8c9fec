package motor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/hal"
	"github.com/openblinds/blindctl/internal/logger"
	"github.com/openblinds/blindctl/internal/settings"
)

// Status is the motion state machine's state.
type Status int

const (
	Stopped Status = iota
	Moving
	Stopping
	CalibratingEndPoint
	StatusError
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Moving:
		return "moving"
	case Stopping:
		return "stopping"
	case CalibratingEndPoint:
		return "calibrating-endpoint"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Code returns the wire encoding used in extended status replies.
func (s Status) Code() byte {
	switch s {
	case Stopped:
		return 0x00
	case Moving:
		return 0x01
	case Stopping:
		return 0x02
	case CalibratingEndPoint:
		return 0x03
	case StatusError:
		return 0xFF
	}
	return 0xFE
}

// Direction is the commanded drive direction.
type Direction int

const (
	None Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "none"
}

// Command is the deferred-command mailbox variant. Commands are produced
// by the command-facing intents (protocol layer, boot auto-calibration,
// scheduler) and executed from the command loop because energizing
// blocks briefly. Hall and stall paths stop the bridge directly instead.
type Command int32

const (
	CmdNone Command = iota
	CmdUp
	CmdDown
	CmdStop
)

const (
	// GearRatio is motor revolutions per curtain-rod revolution.
	GearRatio = 171
	// hall1EdgesPerRev is hall-1 edges per motor revolution.
	hall1EdgesPerRev = 2

	initialPWM = 50

	movementGracePeriodMs       = 500
	hallTimeoutMs               = 300
	hallTimeoutWhileStoppingMs  = 1000
	endpointCalibrationPeriodMs = 1500

	// targetUntilStall makes an ascent run to the mechanical endpoint.
	targetUntilStall int32 = -1
)

// DegreesToLocation converts rod degrees to location ticks.
func DegreesToLocation(deg int32) int32 {
	return GearRatio * 4 * deg / 360
}

// PowerSource reports the supply voltage for the under-voltage gate.
type PowerSource interface {
	// VoltageSixteenths returns the supply voltage in units of 1/16 V.
	VoltageSixteenths() uint8
}

// Config carries the wiring and tunables the controller needs at build
// time. Persisted parameters come from the settings store instead.
type Config struct {
	Hall1Pin int
	Hall2Pin int
	Bridge   BridgePins

	PWMFrequency     int
	SlowdownFactor   int
	MinSlowdownSpeed int
}

// Controller is the motion core. One instance per physical motor; all
// mutable state lives behind one mutex, which stands in for the MCU's
// interrupt masking.
type Controller struct {
	mu     sync.Mutex
	bridge *Bridge
	store  *settings.Store
	power  PowerSource
	log    *zap.SugaredLogger

	status         Status
	direction      Direction
	location       int32
	targetLocation int32
	calibrating    bool
	rotorPosition  int32 // last quadrature phase, -1 until the first edge

	speed       uint8 // active speed setting (session override or default)
	targetSpeed uint8
	currPWM     uint8

	hall1Ticks      uint32
	hall2Ticks      uint32
	hall1IdleMs     uint32
	hall1IntervalMs uint32

	uptimeMs             int64 // advanced by the 1 ms tick, all timers key off it
	movementStartedAt    int64
	calibrationStartedAt int64

	maxCurtainLength  int32
	fullCurtainLength int32
	minimumVoltage    uint16

	slowdownFactor   int32
	minSlowdownSpeed uint8

	dirErrors  uint32
	stallCount uint32

	deferred atomic.Int32
}

// NewController wires the controller to the H-bridge and hall inputs.
func NewController(gpio hal.GPIOProvider, cfg Config, store *settings.Store, power PowerSource) (*Controller, error) {
	bridge, err := NewBridge(gpio, cfg.Bridge, cfg.PWMFrequency)
	if err != nil {
		return nil, fmt.Errorf("failed to init H-bridge: %w", err)
	}

	c := &Controller{
		bridge:           bridge,
		store:            store,
		power:            power,
		log:              logger.Sugar().With("component", "motor"),
		status:           Stopped,
		direction:        None,
		rotorPosition:    -1,
		slowdownFactor:   int32(cfg.SlowdownFactor),
		minSlowdownSpeed: uint8(cfg.MinSlowdownSpeed),
	}
	if c.slowdownFactor <= 0 {
		c.slowdownFactor = 8
	}
	if c.minSlowdownSpeed == 0 {
		c.minSlowdownSpeed = 3
	}

	for _, hp := range []struct {
		pin    int
		sensor int
	}{{cfg.Hall1Pin, 0}, {cfg.Hall2Pin, 1}} {
		sensor := hp.sensor
		if err := gpio.SetMode(hp.pin, hal.Input); err != nil {
			return nil, fmt.Errorf("failed to configure hall pin %d: %w", hp.pin, err)
		}
		if err := gpio.SetPull(hp.pin, hal.PullUp); err != nil {
			return nil, fmt.Errorf("failed to configure hall pull %d: %w", hp.pin, err)
		}
		if err := gpio.WatchEdge(hp.pin, hal.EdgeBoth, func(pin int, value bool) {
			c.HandleHallEdge(sensor, value)
		}); err != nil {
			return nil, fmt.Errorf("failed to watch hall pin %d: %w", hp.pin, err)
		}
	}

	return c, nil
}

// Init loads persisted parameters and queues boot auto-calibration when
// the setting asks for it.
func (c *Controller) Init() error {
	max, err := c.store.Read(settings.KeyMaxCurtainLength)
	if err != nil {
		return fmt.Errorf("failed to read max curtain length: %w", err)
	}
	full, err := c.store.Read(settings.KeyFullCurtainLength)
	if err != nil {
		return fmt.Errorf("failed to read full curtain length: %w", err)
	}
	minV, err := c.store.Read(settings.KeyMinimumVoltage)
	if err != nil {
		return fmt.Errorf("failed to read minimum voltage: %w", err)
	}
	speed, err := c.store.Read(settings.KeyDefaultSpeed)
	if err != nil {
		return fmt.Errorf("failed to read default speed: %w", err)
	}
	autoCal, err := c.store.Read(settings.KeyAutoCalibration)
	if err != nil {
		return fmt.Errorf("failed to read auto-calibration flag: %w", err)
	}

	c.mu.Lock()
	c.maxCurtainLength = int32(max)
	c.fullCurtainLength = int32(full)
	c.minimumVoltage = minV
	c.speed = uint8(speed)
	c.mu.Unlock()

	if autoCal != 0 {
		c.mu.Lock()
		c.calibrating = true
		c.targetLocation = targetUntilStall
		c.mu.Unlock()
		c.Defer(CmdUp)
		c.log.Infow("auto-calibration queued")
	}

	c.log.Infow("motor initialized",
		"max_curtain_length", max,
		"full_curtain_length", full,
		"default_speed", speed,
		"minimum_voltage16", minV,
		"auto_calibration", autoCal != 0)
	return nil
}

// IsStopped reports whether the state machine is in Stopped. Installed as
// the settings store's write gate.
func (c *Controller) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == Stopped
}

// Snapshot is a consistent copy of the controller state for reporting.
type Snapshot struct {
	Status            Status
	Direction         Direction
	Location          int32
	TargetLocation    int32
	Calibrating       bool
	Position100       float64
	RPM               int
	TargetSpeed       uint8
	CurrPWM           uint8
	SpeedSetting      uint8
	Hall1Ticks        uint32
	Hall2Ticks        uint32
	Hall1IntervalMs   uint32
	Hall1IdleMs       uint32
	RotorPosition     int32
	DirErrors         uint32
	Stalls            uint32
	MaxCurtainLength  int32
	FullCurtainLength int32
	MinimumVoltage    uint16
	SlowdownFactor    int32
	MinSlowdownSpeed  uint8
}

// Snapshot returns a copy of the current state under the lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Status:            c.status,
		Direction:         c.direction,
		Location:          c.location,
		TargetLocation:    c.targetLocation,
		Calibrating:       c.calibrating,
		Position100:       c.locationToPosition100Locked(),
		RPM:               c.rpmLocked(),
		TargetSpeed:       c.targetSpeed,
		CurrPWM:           c.currPWM,
		SpeedSetting:      c.speed,
		Hall1Ticks:        c.hall1Ticks,
		Hall2Ticks:        c.hall2Ticks,
		Hall1IntervalMs:   c.hall1IntervalMs,
		Hall1IdleMs:       c.hall1IdleMs,
		RotorPosition:     c.rotorPosition,
		DirErrors:         c.dirErrors,
		Stalls:            c.stallCount,
		MaxCurtainLength:  c.maxCurtainLength,
		FullCurtainLength: c.fullCurtainLength,
		MinimumVoltage:    c.minimumVoltage,
		SlowdownFactor:    c.slowdownFactor,
		MinSlowdownSpeed:  c.minSlowdownSpeed,
	}
}
