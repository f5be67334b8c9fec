package motor

import "math"

// applyEdge moves the location one tick in the sensed direction and runs
// the target-reached and slowdown checks. Location is updated before the
// target check so the stop decision sees the post-edge value.
func (c *Controller) applyEdge(sensed Direction) {
	if sensed == Up {
		c.location--
		if c.direction == Up && c.targetLocation != targetUntilStall && c.location-1 <= c.targetLocation {
			c.stopLocked()
			return
		}
	} else {
		c.location++
		if c.direction == Down && c.location+1 >= c.targetLocation {
			c.stopLocked()
			return
		}
	}
	c.applySlowdownLocked()
}

// applySlowdownLocked lowers the target speed as the rotor closes in on
// the target. The speed is only ever lowered here; a stall-terminated
// ascent (sentinel target) skips the profile entirely so it never enters
// Stopping and gets misread as a clean stop.
func (c *Controller) applySlowdownLocked() {
	if c.direction == None || c.calibrating || c.targetLocation == targetUntilStall {
		return
	}

	d := c.targetLocation - c.location
	if d < 0 {
		d = -d
	}
	if d >= int32(c.targetSpeed)*c.slowdownFactor/8 {
		return
	}

	c.status = Stopping
	s := d * 8 / c.slowdownFactor
	if s < int32(c.minSlowdownSpeed) {
		s = int32(c.minSlowdownSpeed)
	}
	if s < int32(c.targetSpeed) {
		c.targetSpeed = uint8(s)
	}
}

// locationToPosition100Locked reports the position as a percentage of the
// soft bottom limit. While calibrating the location is not authoritative
// and the report pins to the midpoint.
func (c *Controller) locationToPosition100Locked() float64 {
	if c.calibrating {
		return 50.0
	}
	if c.maxCurtainLength <= 0 {
		return 0
	}
	p := 100 * float64(c.location) / float64(c.maxCurtainLength)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (c *Controller) position100ToLocationLocked(pos float64) int32 {
	return int32(math.Round(pos * float64(c.maxCurtainLength) / 100))
}

// Location returns the current location from the top, counted in decoder
// steps: one per accepted edge of either hall sensor.
func (c *Controller) Location() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

// Position100 returns the reported position percentage.
func (c *Controller) Position100() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locationToPosition100Locked()
}

// SetLocation overwrites the tracked location. Used by the extended
// set-location command after the host has measured the true position; it
// also ends any calibration in progress since the location is now known.
func (c *Controller) SetLocation(v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = v
	c.calibrating = false
}
