// Package status holds the P530's last decoded StatusReport and
// publishes derived observer events when it changes. The cache never
// expires: a long silence from the device leaves the last known
// values in place (see spec.md §9, "Status freshness").
package status

import "pktfeeder.dev/p530/protocol"

// Event identifies a published observer transition.
type Event int

const (
	// DoorOpen fires with value true/false whenever the cached
	// door_open flag changes.
	DoorOpen Event = iota
	// FoodLow fires with value true when food_level drops to low,
	// false when it recovers.
	FoodLow
)

// Publisher receives observer events as the cache is updated.
// Publish is called with the new boolean value for the event.
type Publisher interface {
	Publish(event Event, value bool)
}

// Cache holds the most recently received StatusReport.
type Cache struct {
	last       protocol.StatusReport
	have       bool
	publishers []Publisher
}

// Subscribe registers p to receive future Publish calls.
func (c *Cache) Subscribe(p Publisher) {
	c.publishers = append(c.publishers, p)
}

// Update overwrites the cached report in place and publishes any
// observer events whose derived value changed (or this is the first
// report received).
func (c *Cache) Update(s protocol.StatusReport) {
	changed := !c.have || s.IsDoorOpen() != c.last.IsDoorOpen()
	lowChanged := !c.have || s.HasFood() != c.last.HasFood()
	c.last = s
	c.have = true

	if changed {
		c.publish(DoorOpen, s.IsDoorOpen())
	}
	if lowChanged {
		c.publish(FoodLow, !s.HasFood())
	}
}

func (c *Cache) publish(e Event, v bool) {
	for _, p := range c.publishers {
		p.Publish(e, v)
	}
}

// Last returns the most recently cached report and whether any report
// has been received yet.
func (c *Cache) Last() (protocol.StatusReport, bool) {
	return c.last, c.have
}

// IsReady reports the cached ready flag.
func (c *Cache) IsReady() bool {
	return c.have && c.last.IsReady()
}

// HasFood reports the cached food_level flag, conditioned on
// readiness per spec.md §4.5.
func (c *Cache) HasFood() bool {
	return c.IsReady() && c.last.HasFood()
}
