// Package indicator drives GPIO output indicators (door-blocked and
// food-low LEDs) from the p530 engine's sensor sinks.
package indicator

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/bcm283x"
)

// LED is a single GPIO-backed indicator. Set(true) drives the pin
// high; Set(false) drives it low.
type LED struct {
	pin gpio.PinOut
}

var pinsByName = map[string]gpio.PinOut{
	"GPIO5":  bcm283x.GPIO5,
	"GPIO6":  bcm283x.GPIO6,
	"GPIO12": bcm283x.GPIO12,
	"GPIO13": bcm283x.GPIO13,
	"GPIO16": bcm283x.GPIO16,
	"GPIO17": bcm283x.GPIO17,
	"GPIO19": bcm283x.GPIO19,
	"GPIO20": bcm283x.GPIO20,
	"GPIO21": bcm283x.GPIO21,
	"GPIO26": bcm283x.GPIO26,
}

// Open initializes the host GPIO subsystem and binds name (e.g.
// "GPIO17") to a new output LED.
func Open(name string) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("indicator: host init: %w", err)
	}
	pin, ok := pinsByName[name]
	if !ok {
		return nil, fmt.Errorf("indicator: unknown pin %q", name)
	}
	return &LED{pin: pin}, nil
}

// Set drives the indicator on or off.
func (l *LED) Set(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return l.pin.Out(level)
}

// DoorBlockedSink returns a callback suitable for
// p530.Engine.AddOnDoorIssueCallback: it lights l whenever the door
// reports an issue.
func (l *LED) DoorBlockedSink() func(issue bool) {
	return func(issue bool) {
		if err := l.Set(issue); err != nil {
			// Nothing the caller can usefully do with a GPIO write
			// failure here; the engine tick loop continues regardless.
			_ = err
		}
	}
}
