package protocol

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/logger"
	"github.com/openblinds/blindctl/internal/motor"
)

// PowerReader supplies the battery fields of status replies.
type PowerReader interface {
	VoltageSixteenths() uint8
	BatteryPercent() uint8
}

// Processor maps command pairs to motion intents and builds replies. One
// instance serves every link (UART, MQTT, HTTP passthrough); the motor
// controller serializes the effects.
type Processor struct {
	motor *motor.Controller
	power PowerReader
	log   *zap.SugaredLogger

	commandsSeen atomic.Uint32
	unknownSeen  atomic.Uint32
}

// NewProcessor creates a command processor.
func NewProcessor(m *motor.Controller, power PowerReader) *Processor {
	return &Processor{
		motor: m,
		power: power,
		log:   logger.Sugar().With("component", "protocol"),
	}
}

// Process executes one command pair. The returned slice is a complete
// reply frame, or nil when the command has no reply (motion commands) or
// is unknown (silently ignored).
func (p *Processor) Process(c1, c2 byte) []byte {
	p.commandsSeen.Add(1)

	switch c1 {
	case 0x0A, 0xFA, 0xCC:
		return p.processZeroParam(uint16(c1)<<8 | uint16(c2))
	}
	return p.processOneParam(c1, c2)
}

func (p *Processor) processZeroParam(cmd uint16) []byte {
	switch cmd {
	case cmdUp:
		p.motor.MoveUpUntilStall()
	case cmdDown:
		p.motor.MoveDownToMax()
	case cmdStop:
		p.motor.Defer(motor.CmdStop)
	case cmdUp17:
		p.motor.MoveByDegrees(-17, false)
	case cmdDown17:
		p.motor.MoveByDegrees(17, false)
	case cmdOverrideUp90:
		p.motor.MoveByDegrees(-90, true)
	case cmdOverrideDown90:
		p.motor.MoveByDegrees(90, true)
	case cmdOverrideUp6:
		p.motor.MoveByDegrees(-6, true)
	case cmdOverrideDown6:
		p.motor.MoveByDegrees(6, true)
	case cmdOverrideDown5Turns:
		p.motor.MoveByDegrees(5*360, true)
	case cmdSetMaxCurtainLength:
		if err := p.motor.SetMaxCurtainLengthHere(); err != nil {
			p.log.Errorw("failed to persist max curtain length", "error", err)
		}
	case cmdSetFullCurtainLength:
		if err := p.motor.SetFullCurtainLengthHere(); err != nil {
			p.log.Errorw("failed to persist full curtain length", "error", err)
		}
	case cmdResetCurtainLength:
		if err := p.motor.ResetMaxToFull(); err != nil {
			p.log.Errorw("failed to reset curtain length", "error", err)
		}
	case cmdGetStatus:
		return p.statusReply()
	case cmdGetStatusExt:
		return p.statusExtReply()
	case cmdGetLocation:
		return p.locationReply()
	case cmdGetVersion:
		return respond(replyVersion, VersionMajor, VersionMinor)
	case cmdGetLimits:
		return p.limitsReply()
	case cmdGetDebug1:
		return p.debug1Reply()
	case cmdGetDebug2:
		return p.debug2Reply()
	default:
		p.unknownSeen.Add(1)
	}
	return nil
}

func (p *Processor) processOneParam(c1, c2 byte) []byte {
	// 12-bit parameter families first: low nibble of c1 is bits 8-11.
	param12 := int32(c1&0x0F)<<8 | int32(c2)
	switch c1 & 0xF0 {
	case cmdExtGoToPercent:
		p.motor.MoveToPosition100(float64(param12) / 16.0)
		return nil
	case cmdExtSetLocation:
		p.motor.SetLocation(param12 << 1)
		return nil
	case cmdExtGoToLocation:
		p.motor.MoveToLocation(param12 << 1)
		return nil
	}

	switch c1 {
	case cmdGoToPercent:
		p.motor.MoveToPosition100(float64(c2))
	case cmdSetSpeed:
		if c2 > 1 {
			p.motor.SetSessionSpeed(c2)
		}
	case cmdSetDefaultSpeed:
		if c2 > 0 {
			if err := p.motor.SetDefaultSpeed(c2); err != nil {
				p.log.Errorw("failed to persist default speed", "error", err)
			}
		}
	case cmdSetMinimumVoltage:
		if err := p.motor.SetMinimumVoltage(uint16(c2)); err != nil {
			p.log.Errorw("failed to persist minimum voltage", "error", err)
		}
	case cmdSetAutoCalibration:
		if err := p.motor.SetAutoCalibration(c2 != 0); err != nil {
			p.log.Errorw("failed to persist auto-calibration", "error", err)
		}
	case cmdSetSlowdownFactor:
		p.motor.SetSlowdownFactor(c2)
	case cmdSetMinSlowdownSpeed:
		p.motor.SetMinSlowdownSpeed(c2)
	default:
		p.unknownSeen.Add(1)
	}
	return nil
}

// --- replies ---

func (p *Processor) batteryFields() (percent, volts16 uint8) {
	if p.power == nil {
		return 0, 0
	}
	return p.power.BatteryPercent(), p.power.VoltageSixteenths()
}

func (p *Processor) statusReply() []byte {
	s := p.motor.Snapshot()
	battery, volts := p.batteryFields()
	return respond(replyStatus,
		battery,
		volts,
		clampByte(s.RPM),
		byte(int(s.Position100+0.5)),
	)
}

func (p *Processor) statusExtReply() []byte {
	s := p.motor.Snapshot()
	_, volts := p.batteryFields()
	posInt := int(s.Position100)
	posFrac := int((s.Position100 - float64(posInt)) * 256)
	return respond(replyStatusExt,
		s.Status.Code(),
		volts,
		clampByte(s.RPM),
		byte(posInt),
		byte(posFrac),
	)
}

func (p *Processor) locationReply() []byte {
	s := p.motor.Snapshot()
	loc := uint16(s.Location)
	return respond(replyLocation,
		byte(loc>>8), byte(loc),
		byte(s.RotorPosition),
	)
}

func (p *Processor) limitsReply() []byte {
	s := p.motor.Snapshot()
	max := uint16(s.MaxCurtainLength)
	full := uint16(s.FullCurtainLength)
	return respond(replyLimits,
		byte(max>>8), byte(max),
		byte(full>>8), byte(full),
	)
}

func (p *Processor) debug1Reply() []byte {
	s := p.motor.Snapshot()
	return respond(replyDebug1,
		byte(s.DirErrors>>8), byte(s.DirErrors),
		byte(s.Stalls>>8), byte(s.Stalls),
		byte(s.Hall1Ticks>>8), byte(s.Hall1Ticks),
		byte(s.Hall2Ticks>>8), byte(s.Hall2Ticks),
	)
}

func (p *Processor) debug2Reply() []byte {
	s := p.motor.Snapshot()
	return respond(replyDebug2,
		byte(s.Hall1IntervalMs>>8), byte(s.Hall1IntervalMs),
		byte(s.Hall1IdleMs>>8), byte(s.Hall1IdleMs),
		s.CurrPWM,
		s.TargetSpeed,
		byte(s.MinimumVoltage),
	)
}

// Stats reports processed and unknown command counts for telemetry.
func (p *Processor) Stats() (commands, unknown uint32) {
	return p.commandsSeen.Load(), p.unknownSeen.Load()
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
