// Package p530 wires the Frame Codec, Link Layer, Status Cache,
// Waiter Registry and Action Framework into the P530 feeder
// controller's public surface: Send, AddReportWaiter, Tick,
// IsReady/HasFood, and the observer hooks described in spec.md §6.
package p530

import (
	"fmt"
	"io"
	"log"

	"pktfeeder.dev/p530/action"
	"pktfeeder.dev/p530/link"
	"pktfeeder.dev/p530/protocol"
	"pktfeeder.dev/p530/status"
	"pktfeeder.dev/p530/waiter"
)

// UART is the external collaborator the engine reads from and writes
// to (spec.md §6). Available and ReadByte must never block past what
// is already buffered.
type UART interface {
	Available() (int, error)
	ReadByte() (byte, error)
	WriteArray(data []byte) error
}

// Clock is the external monotonic time source (spec.md §6).
type Clock interface {
	NowMS() uint32
}

// Engine is the P530 protocol engine. It is driven entirely by
// repeated calls to Tick and never blocks.
type Engine struct {
	port   UART
	clock  Clock
	logger *log.Logger

	link    *link.Link
	waiters waiter.Registry
	status  status.Cache

	txSeq uint8

	lastPortions  uint8
	totalPortions int

	errorCallbacks        []func(action.ErrorCode)
	doorBlockedCallbacks  []func()
	dispenseCallbacks     []func(portions uint8)
	doorIssueCallbacks    []func(issue bool)
	lastPortionsCallbacks []func(portions uint8)
}

// New returns an Engine reading and writing over port, using clock
// for waiter deadlines. A nil logger disables tracing.
func New(port UART, clock Clock, logger *log.Logger) *Engine {
	e := &Engine{
		port:   port,
		clock:  clock,
		logger: logger,
	}
	e.link = link.New(port, logger)
	return e
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Describe writes a configuration summary, the Go equivalent of the
// original component's dump_config.
func (e *Engine) Describe(w io.Writer) {
	fmt.Fprintln(w, "Petkit P530:")
	fmt.Fprintln(w, "  UART: 115200 baud, 8N1")
	fmt.Fprintf(w, "  Door opened sensor: %v\n", len(e.doorIssueCallbacks) > 0)
	fmt.Fprintf(w, "  Food low sensor: configured via status subscribers\n")
	fmt.Fprintf(w, "  Total portions dispensed: %d\n", e.totalPortions)
}

// Tick drains any buffered UART bytes through the link layer and
// expires any waiters whose deadline has passed. It never blocks.
func (e *Engine) Tick() {
	now := e.clock.NowMS()
	e.waiters.Tick(now)
	e.link.Poll(e)
}

// Send allocates the next sequence number, encodes a packet, and
// writes it to the UART. It returns protocol.MaxSeq if the UART
// refuses the write.
func (e *Engine) Send(reqType uint8, payload []byte) uint8 {
	seq := e.nextSeq()
	buf, err := protocol.Encode(nil, reqType, seq, payload)
	if err != nil {
		e.logf("p530: encode type=0x%02X: %v", reqType, err)
		return protocol.MaxSeq
	}
	if err := e.port.WriteArray(buf); err != nil {
		e.logf("p530: write type=0x%02X seq=0x%02X: %v", reqType, seq, err)
		return protocol.MaxSeq
	}
	e.logf("p530: tx type=0x%02X seq=0x%02X len=%d", reqType, seq, len(payload))
	return seq
}

// nextSeq allocates the next outgoing sequence number: monotonic
// 1..254, wrapping to 1. 0x00 and 0xFF are never issued (spec.md §3
// invariant 5).
func (e *Engine) nextSeq() uint8 {
	if e.txSeq >= 254 {
		e.txSeq = 1
	} else {
		e.txSeq++
	}
	return e.txSeq
}

// AddReportWaiter registers cb for a future frame matching (typ, seq).
// seq 0 matches any sequence number; timeoutMS 0 means no deadline.
func (e *Engine) AddReportWaiter(typ, seq uint8, timeoutMS uint32, cb waiter.Callback) {
	var deadline uint32
	if timeoutMS > 0 {
		deadline = e.clock.NowMS() + timeoutMS
	}
	e.logf("p530: add waiter type=0x%02X seq=0x%02X timeout=%dms", typ, seq, timeoutMS)
	e.waiters.Register(typ, seq, deadline, cb)
}

// Dispatch implements link.Dispatcher. It updates the status cache
// and sensor publications for interesting reports, then routes the
// frame to any matching waiter.
func (e *Engine) Dispatch(typ, seq uint8, payload []byte) {
	switch typ {
	case protocol.RepStatus:
		e.handleStatus(payload)
	case protocol.RepDoorOpenDone, protocol.RepDoorCloseDone:
		e.handleDoorComplete(payload)
	case protocol.RepDispenseDone:
		e.handleDispenseComplete(payload)
	}
	e.waiters.Dispatch(typ, seq, payload)
}

func (e *Engine) handleStatus(payload []byte) {
	s, err := protocol.DecodeStatusReport(payload)
	if err != nil {
		e.logf("p530: unexpected status report payload size: %d", len(payload))
		return
	}
	e.logf("p530: got status report: food=%v door_open=%v", s.HasFood(), s.IsDoorOpen())
	e.status.Update(s)
}

func (e *Engine) handleDoorComplete(payload []byte) {
	if len(payload) < 1 {
		e.logf("p530: unexpected door complete payload size: %d", len(payload))
		return
	}
	ok := payload[0] == 0x02
	for _, cb := range e.doorIssueCallbacks {
		cb(!ok)
	}
	if ok {
		e.logf("p530: got door report: opened/closed")
		return
	}
	e.logf("p530: got door report: door blocked, status=0x%02X", payload[0])
}

func (e *Engine) handleDispenseComplete(payload []byte) {
	if len(payload) < 3 {
		e.logf("p530: unexpected dispense complete payload size: %d", len(payload))
		return
	}
	if payload[2] == 0x00 {
		e.logf("p530: got dispense complete report: in progress")
		return
	}
	portions := payload[0]
	e.logf("p530: got dispense complete report: portions=%d", portions)
	e.lastPortions = portions
	e.totalPortions += int(portions)
	for _, cb := range e.lastPortionsCallbacks {
		cb(portions)
	}
	for _, cb := range e.dispenseCallbacks {
		cb(portions)
	}
}

// IsReady reports whether the cached status says the device is ready.
func (e *Engine) IsReady() bool { return e.status.IsReady() }

// HasFood reports whether the cached status says food is present and
// the device is ready.
func (e *Engine) HasFood() bool { return e.status.HasFood() }

// LastPortionsDispensed returns the portions reported by the most
// recent DISPENSE_DONE frame.
func (e *Engine) LastPortionsDispensed() uint8 { return e.lastPortions }

// TotalPortionsDispensed returns the running total of portions
// reported complete since the engine was created.
func (e *Engine) TotalPortionsDispensed() int { return e.totalPortions }

// SubscribeStatus registers p to receive door-open/food-low
// transitions derived from STATUS reports.
func (e *Engine) SubscribeStatus(p status.Publisher) { e.status.Subscribe(p) }

// AddOnErrorCallback registers the global fallback observer, invoked
// for any action that finishes with a non-OK code and no per-call
// onError continuation.
func (e *Engine) AddOnErrorCallback(cb func(action.ErrorCode)) {
	e.errorCallbacks = append(e.errorCallbacks, cb)
}

// AddOnDoorBlockedCallback registers an observer fired whenever a
// door action finishes with DoorBlocked.
func (e *Engine) AddOnDoorBlockedCallback(cb func()) {
	e.doorBlockedCallbacks = append(e.doorBlockedCallbacks, cb)
}

// AddOnDispenseCompleteCallback registers the on_dispense_complete
// observer (spec.md §6), fired with the reported portion count on
// every confirmed DISPENSE_DONE report, regardless of which action
// (if any) is waiting on it — same trigger as the last-portions
// sensor sink, kept as a distinct hook per §6.
func (e *Engine) AddOnDispenseCompleteCallback(cb func(portions uint8)) {
	e.dispenseCallbacks = append(e.dispenseCallbacks, cb)
}

// AddOnDoorIssueCallback registers the door-issue sensor sink, fired
// on every door completion report regardless of which action (if
// any) is waiting for it.
func (e *Engine) AddOnDoorIssueCallback(cb func(issue bool)) {
	e.doorIssueCallbacks = append(e.doorIssueCallbacks, cb)
}

// AddOnLastPortionsCallback registers the last-portions-dispensed
// sensor sink.
func (e *Engine) AddOnLastPortionsCallback(cb func(portions uint8)) {
	e.lastPortionsCallbacks = append(e.lastPortionsCallbacks, cb)
}

func (e *Engine) fallback(userOnError action.Continuation) action.Continuation {
	return func(code action.ErrorCode, payload []byte) {
		if code == action.DoorBlocked {
			for _, cb := range e.doorBlockedCallbacks {
				cb()
			}
		}
		if userOnError != nil {
			userOnError(code, payload)
			return
		}
		for _, cb := range e.errorCallbacks {
			cb(code)
		}
	}
}

// LedCtl drives the LED/buzzer identified by target.
func (e *Engine) LedCtl(target protocol.LedCtlTarget, onMs, offMs, count uint16, onComplete, onError action.Continuation) {
	action.LedCtl.Play(e, action.LedCtlArgs{Target: target, OnMs: onMs, OffMs: offMs, Count: count}, true, onComplete, e.fallback(onError))
}

// OpenDoor opens the food door.
func (e *Engine) OpenDoor(duration uint8, onComplete, onError action.Continuation) {
	action.DoorOpen.Play(e, action.DoorArgs{Duration: duration}, true, onComplete, e.fallback(onError))
}

// CloseDoor closes the food door.
func (e *Engine) CloseDoor(duration uint8, onComplete, onError action.Continuation) {
	action.DoorClose.Play(e, action.DoorArgs{Duration: duration}, true, onComplete, e.fallback(onError))
}

// Dispense releases portions units of food. It fails immediately
// with action.NoFood if HasFood() is false, without writing to the
// UART.
func (e *Engine) Dispense(portions uint8, onComplete, onError action.Continuation) {
	action.Dispense.Play(e, action.DispenseArgs{Portions: portions}, true, onComplete, e.fallback(onError))
}

// Init runs the device's scripted startup sequence.
func (e *Engine) Init(onComplete, onError action.Continuation) {
	action.Init(e, onComplete, e.fallback(onError))
}
