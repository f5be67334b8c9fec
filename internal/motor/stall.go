package motor

// tickStall runs every 1 ms. It advances the uptime counter every other
// timer keys off, ages the hall-1 idle time, and fires stall handling
// once the grace period and hall timeout have both passed. It also times
// out the endpoint-calibration settling window.
func (c *Controller) tickStall() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.uptimeMs++

	switch c.status {
	case Moving, Stopping:
		c.hall1IdleMs++
		if c.uptimeMs-c.movementStartedAt <= movementGracePeriodMs {
			return
		}
		if c.hall1IdleMs <= hallTimeoutMs {
			return
		}
		// During planned deceleration the edges slow right down; give
		// them longer before calling it a stall.
		if c.status == Stopping && c.hall1IdleMs < hallTimeoutWhileStoppingMs {
			return
		}
		c.stallReachedLocked()

	case CalibratingEndPoint:
		if c.uptimeMs-c.calibrationStartedAt > endpointCalibrationPeriodMs {
			c.status = Stopped
			c.calibrating = false
			c.location = 0
			c.log.Infow("endpoint calibration complete, location zeroed")
		}
	}
}

// stallReachedLocked sequences the three stall outcomes: a stall during
// planned deceleration is a clean stop, an up-stall is the top endpoint
// (enter the settling state), a down-stall is a hard fault.
func (c *Controller) stallReachedLocked() {
	dir := c.direction
	st := c.status
	c.stallCount++
	c.stopLocked()

	switch {
	case st == Stopping:
		c.log.Debugw("stall during deceleration, treated as stop", "location", c.location)
	case dir == Up:
		c.status = CalibratingEndPoint
		c.calibrationStartedAt = c.uptimeMs
		c.log.Infow("top endpoint stall, settling", "location", c.location)
	case dir == Down:
		c.status = StatusError
		c.log.Warnw("stall while descending", "location", c.location)
	}
}
