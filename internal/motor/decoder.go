package motor

// The two hall sensors form a 4-phase quadrature. Driving up the edges
// arrive as S1 rise, S2 rise, S1 fall, S2 fall (phases 0,1,2,3); driving
// down the same edges arrive shifted so consecutive phases differ by 3
// mod 4. A phase jump of 2 means the rotor reversed between edges and
// carries no usable delta.

// HandleHallEdge processes one sensor edge. sensor is 0 for hall 1 and 1
// for hall 2, level the line state after the edge. Runs on the HAL's edge
// goroutine, so it must not block beyond the state lock.
func (c *Controller) HandleHallEdge(sensor int, level bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sensor == 0 {
		c.hall1Ticks++
		// The first edge after a stop has no predecessor to measure
		// against, so the interval only becomes valid from the second.
		if c.hall1Ticks > 1 {
			c.hall1IntervalMs = c.hall1IdleMs
		}
		c.hall1IdleMs = 0
	} else {
		c.hall2Ticks++
	}

	v := int32(0)
	if level {
		v = 1
	}
	newPhase := int32(sensor) + (1-v)*2

	if c.rotorPosition < 0 {
		c.rotorPosition = newPhase
		return
	}

	diff := (newPhase - c.rotorPosition + 4) % 4
	c.rotorPosition = newPhase

	var sensed Direction
	switch diff {
	case 1:
		sensed = Up
	case 3:
		sensed = Down
	default:
		// diff 2 is a direction change, diff 0 a repeated edge.
		return
	}

	if c.direction != None && sensed != c.direction {
		c.dirErrors++
		return
	}

	// With the bridge off (direction None) the curtain can still turn the
	// rotor through tension; those edges must move the location too.
	c.applyEdge(sensed)
}

// rpmLocked derives the rod RPM from the last hall-1 interval. Two hall-1
// edges per motor revolution, GearRatio motor revolutions per rod turn.
func (c *Controller) rpmLocked() int {
	if c.hall1IntervalMs == 0 {
		return 0
	}
	return 60000 / (GearRatio * int(c.hall1IntervalMs) * hall1EdgesPerRev)
}

// RPM returns the current rod RPM.
func (c *Controller) RPM() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rpmLocked()
}
