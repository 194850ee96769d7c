// Command feederctl drives a Petkit P530 feeder controller over a
// serial link: it can initialize the device, open or close the food
// door, dispense portions, or drive an LED/buzzer.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"pktfeeder.dev/p530"
	"pktfeeder.dev/p530/action"
	"pktfeeder.dev/p530/driver/uart"
	"pktfeeder.dev/p530/protocol"
)

var (
	openFlags     = flag.NewFlagSet("open", flag.ExitOnError)
	openDuration  = openFlags.Int("duration", 30, "seconds the door stays open")
	closeFlags    = flag.NewFlagSet("close", flag.ExitOnError)
	closeDuration = closeFlags.Int("duration", 30, "seconds allowed for the door to close")

	dispenseFlags = flag.NewFlagSet("dispense", flag.ExitOnError)
	portions      = dispenseFlags.Int("portions", 1, "number of portions to dispense")

	ledFlags  = flag.NewFlagSet("led", flag.ExitOnError)
	ledTarget = ledFlags.String("target", "upper", "upper, lower, or beep")
	onMs      = ledFlags.Int("on-ms", 200, "on duration in milliseconds")
	offMs     = ledFlags.Int("off-ms", 200, "off duration in milliseconds")
	count     = ledFlags.Int("count", 1, "number of on/off cycles")

	rootFlags = flag.NewFlagSet("feederctl", flag.ExitOnError)
	device    = rootFlags.String("device", "", "serial device (default: OS-specific auto-detect)")
	verbose   = rootFlags.Bool("v", false, "log protocol traffic")
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "feederctl: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string) error {
	if err := rootFlags.Parse(args); err != nil {
		return err
	}
	args = rootFlags.Args()
	if len(args) == 0 {
		return errors.New("missing command (init, status, open, close, dispense, led)")
	}
	cmd := args[0]
	args = args[1:]

	port, err := uart.Open(*device)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer port.Close()

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	eng := p530.New(port, p530.SystemClock{}, logger)
	eng.AddOnErrorCallback(func(code action.ErrorCode) {
		fmt.Fprintf(os.Stderr, "feederctl: action failed: %s\n", code)
	})

	switch cmd {
	case "init":
		return runAwait(eng, eng.Init)
	case "status":
		return runStatus(eng)
	case "open":
		if err := openFlags.Parse(args); err != nil {
			return err
		}
		return runAwait(eng, func(onComplete, onError action.Continuation) {
			eng.OpenDoor(uint8(*openDuration), onComplete, onError)
		})
	case "close":
		if err := closeFlags.Parse(args); err != nil {
			return err
		}
		return runAwait(eng, func(onComplete, onError action.Continuation) {
			eng.CloseDoor(uint8(*closeDuration), onComplete, onError)
		})
	case "dispense":
		if err := dispenseFlags.Parse(args); err != nil {
			return err
		}
		return runAwait(eng, func(onComplete, onError action.Continuation) {
			eng.Dispense(uint8(*portions), onComplete, onError)
		})
	case "led":
		if err := ledFlags.Parse(args); err != nil {
			return err
		}
		target, err := parseLedTarget(*ledTarget)
		if err != nil {
			return err
		}
		return runAwait(eng, func(onComplete, onError action.Continuation) {
			eng.LedCtl(target, uint16(*onMs), uint16(*offMs), uint16(*count), onComplete, onError)
		})
	default:
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

func parseLedTarget(s string) (protocol.LedCtlTarget, error) {
	switch s {
	case "upper":
		return protocol.UpperLED, nil
	case "lower":
		return protocol.LowerLED, nil
	case "beep":
		return protocol.Beep, nil
	default:
		return 0, fmt.Errorf("unknown led target: %q", s)
	}
}

// runAwait drives the engine's tick loop until start's action
// completes or fails, then reports the outcome.
func runAwait(eng *p530.Engine, start func(onComplete, onError action.Continuation)) error {
	done := false
	var failed error
	start(func(code action.ErrorCode, payload []byte) {
		done = true
	}, func(code action.ErrorCode, payload []byte) {
		done = true
		failed = fmt.Errorf("action failed: %s", code)
	})
	const pollInterval = 10 * time.Millisecond
	const overallTimeout = 30 * time.Second
	deadline := time.Now().Add(overallTimeout)
	for !done {
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for device")
		}
		eng.Tick()
		time.Sleep(pollInterval)
	}
	return failed
}

func runStatus(eng *p530.Engine) error {
	if err := runAwait(eng, func(onComplete, onError action.Continuation) {
		action.GetStatus.Play(eng, nil, true, onComplete, onError)
	}); err != nil {
		return err
	}
	eng.Describe(os.Stdout)
	return nil
}
