package motor

// tickRegulator runs every 10 ms while energized and nudges the PWM duty
// cycle toward the target RPM. Deceleration is allowed a steeper ramp
// than acceleration so the slowdown profile actually bites.
func (c *Controller) tickRegulator() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Moving && c.status != Stopping {
		return
	}

	speed := c.rpmLocked()
	target := int(c.targetSpeed)

	switch {
	case speed < target:
		if c.currPWM < 254 {
			c.currPWM++
			if target-speed > 2 {
				c.currPWM++
			}
		}
	case speed > target:
		if c.currPWM > 1 {
			c.currPWM--
			if speed-target > 2 && c.currPWM > 1 {
				c.currPWM--
			}
			if speed-target > 4 && c.currPWM > 1 {
				c.currPWM--
			}
		}
	}

	c.bridge.SetDuty(c.direction, c.currPWM)
}
