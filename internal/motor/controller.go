package motor

import (
	"context"
	"time"

	"github.com/openblinds/blindctl/internal/settings"
)

// settleDelay lets the bridge discharge between de-energizing one side
// and closing the other.
const settleDelay = 10 * time.Millisecond

// stopLocked de-energizes the bridge and resets the speed state. The
// outputs are cleared before status flips to Stopped, so any observer
// that sees Stopped sees a dead bridge.
func (c *Controller) stopLocked() {
	c.bridge.Deenergize()
	c.status = Stopped
	c.direction = None
	c.currPWM = 0
	c.targetSpeed = 0
	c.hall1IntervalMs = 0
	c.hall1Ticks = 0
	c.hall2Ticks = 0
	c.hall1IdleMs = 0
}

// Stop halts the motor immediately. Safe from any goroutine.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// startMove is the common start path: de-energize, wait out the settle
// delay, then energize in the requested direction. Only the command loop
// calls this, so the sleep never lands on a tick or edge path.
func (c *Controller) startMove(dir Direction) {
	c.mu.Lock()
	if c.status == StatusError {
		c.mu.Unlock()
		c.log.Warnw("refusing to move, controller in error state")
		return
	}
	if c.minimumVoltage != 0 && c.power != nil {
		if v := c.power.VoltageSixteenths(); uint16(v) < c.minimumVoltage {
			c.mu.Unlock()
			c.log.Warnw("refusing to move, supply below minimum",
				"voltage16", v, "minimum16", c.minimumVoltage)
			return
		}
	}
	c.stopLocked()
	speed := c.speed
	c.mu.Unlock()

	time.Sleep(settleDelay)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.movementStartedAt = c.uptimeMs
	c.targetSpeed = speed
	c.currPWM = initialPWM
	c.direction = dir
	c.status = Moving
	c.bridge.Energize(dir, c.currPWM)
	c.log.Infow("movement started",
		"direction", dir.String(),
		"location", c.location,
		"target", c.targetLocation,
		"target_speed", speed)
}

// Defer queues a command for the command loop. The mailbox holds one
// slot and a newer command supersedes an unexecuted older one.
func (c *Controller) Defer(cmd Command) {
	c.deferred.Store(int32(cmd))
}

func (c *Controller) takeDeferred() Command {
	return Command(c.deferred.Swap(int32(CmdNone)))
}

// ExecuteDeferred drains the mailbox and actuates. May block for the
// settle delay; call it only from the command loop (or tests).
func (c *Controller) ExecuteDeferred() {
	switch c.takeDeferred() {
	case CmdStop:
		c.Stop()
	case CmdUp:
		c.startMove(Up)
	case CmdDown:
		c.startMove(Down)
	}
}

// Run drives the controller's clocks until ctx is cancelled: the 1 ms
// stall tick, the 10 ms regulator tick, and the command loop. The motor
// is stopped on the way out.
func (c *Controller) Run(ctx context.Context) {
	go c.runTicks(ctx)
	c.runCommandLoop(ctx)
}

func (c *Controller) runTicks(ctx context.Context) {
	stall := time.NewTicker(time.Millisecond)
	defer stall.Stop()
	reg := time.NewTicker(10 * time.Millisecond)
	defer reg.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stall.C:
			c.tickStall()
		case <-reg.C:
			c.tickRegulator()
		}
	}
}

func (c *Controller) runCommandLoop(ctx context.Context) {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-t.C:
			c.ExecuteDeferred()
		}
	}
}

// --- command-facing motion intents ---

// MoveUpUntilStall ascends to the mechanical endpoint, forcing a
// re-calibration when the stall lands.
func (c *Controller) MoveUpUntilStall() {
	c.mu.Lock()
	c.targetLocation = targetUntilStall
	c.mu.Unlock()
	c.Defer(CmdUp)
}

// MoveDownToMax descends to the soft bottom limit.
func (c *Controller) MoveDownToMax() {
	c.mu.Lock()
	c.targetLocation = c.maxCurtainLength
	c.mu.Unlock()
	c.Defer(CmdDown)
}

// MoveToLocation drives toward an absolute tick location.
func (c *Controller) MoveToLocation(target int32) {
	c.mu.Lock()
	c.targetLocation = target
	up := target < c.location
	c.mu.Unlock()
	if up {
		c.Defer(CmdUp)
	} else {
		c.Defer(CmdDown)
	}
}

// MoveToPosition100 drives to a percentage of the soft limit. Ignored
// while calibrating because the location is not authoritative.
func (c *Controller) MoveToPosition100(pos float64) {
	c.mu.Lock()
	if c.calibrating {
		c.mu.Unlock()
		return
	}
	target := c.position100ToLocationLocked(pos)
	c.targetLocation = target
	up := target < c.location
	c.mu.Unlock()
	if up {
		c.Defer(CmdUp)
	} else {
		c.Defer(CmdDown)
	}
}

// MoveByDegrees moves relative to the current location. Positive degrees
// descend. Non-override moves clamp the target into [0, max]; override
// moves drive past the soft limits for service adjustments.
func (c *Controller) MoveByDegrees(deg int32, override bool) {
	c.mu.Lock()
	target := c.location + DegreesToLocation(deg)
	if !override {
		if target < 0 {
			target = 0
		}
		if target > c.maxCurtainLength {
			target = c.maxCurtainLength
		}
	}
	c.targetLocation = target
	c.mu.Unlock()
	if deg < 0 {
		c.Defer(CmdUp)
	} else {
		c.Defer(CmdDown)
	}
}

// --- command-facing parameter updates ---

// SetSessionSpeed changes the active speed without persisting. A running
// movement picks it up immediately unless it is already decelerating.
func (c *Controller) SetSessionSpeed(v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = v
	if c.status == Moving {
		c.targetSpeed = v
	}
}

// SetDefaultSpeed changes the active speed and persists it.
func (c *Controller) SetDefaultSpeed(v uint8) error {
	c.mu.Lock()
	c.speed = v
	if c.status == Moving {
		c.targetSpeed = v
	}
	c.mu.Unlock()
	return c.store.Write(settings.KeyDefaultSpeed, uint16(v))
}

// SetMinimumVoltage persists the under-voltage threshold (1/16 V units,
// 0 disables the check).
func (c *Controller) SetMinimumVoltage(v uint16) error {
	c.mu.Lock()
	c.minimumVoltage = v
	c.mu.Unlock()
	return c.store.Write(settings.KeyMinimumVoltage, v)
}

// SetAutoCalibration persists the boot auto-calibration flag.
func (c *Controller) SetAutoCalibration(on bool) error {
	var v uint16
	if on {
		v = 1
	}
	return c.store.Write(settings.KeyAutoCalibration, v)
}

// SetSlowdownFactor tunes how far out deceleration begins.
func (c *Controller) SetSlowdownFactor(v uint8) {
	if v == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slowdownFactor = int32(v)
}

// SetMinSlowdownSpeed tunes the deceleration floor.
func (c *Controller) SetMinSlowdownSpeed(v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minSlowdownSpeed = v
}

// SetMaxCurtainLengthHere persists the current location as the soft
// bottom limit. Ignored unless stopped: neither the in-memory limit nor
// the stored value changes.
func (c *Controller) SetMaxCurtainLengthHere() error {
	if !c.IsStopped() {
		return nil
	}
	c.mu.Lock()
	v := c.location
	c.maxCurtainLength = v
	c.mu.Unlock()
	return c.store.Write(settings.KeyMaxCurtainLength, uint16(v))
}

// SetFullCurtainLengthHere persists the current location as the factory
// bottom limit and resets the soft limit to match.
func (c *Controller) SetFullCurtainLengthHere() error {
	if !c.IsStopped() {
		return nil
	}
	c.mu.Lock()
	v := c.location
	c.fullCurtainLength = v
	c.maxCurtainLength = v
	c.mu.Unlock()
	if err := c.store.Write(settings.KeyFullCurtainLength, uint16(v)); err != nil {
		return err
	}
	return c.store.Write(settings.KeyMaxCurtainLength, uint16(v))
}

// ResetMaxToFull restores the soft limit to the factory limit and marks
// the position unknown until the next endpoint calibration.
func (c *Controller) ResetMaxToFull() error {
	c.mu.Lock()
	c.maxCurtainLength = c.fullCurtainLength
	v := uint16(c.fullCurtainLength)
	c.calibrating = true
	c.mu.Unlock()
	return c.store.Write(settings.KeyMaxCurtainLength, v)
}

// Status returns the current state machine status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
