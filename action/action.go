// Package action implements the P530 Action Framework: composable
// command objects that send a request and drive a small per-call
// state machine (IDLE -> WAIT_ACK -> WAIT_REPORT -> FINISHED), with
// success/error continuation chains. See spec.md §4.5.
package action

import (
	"time"

	"pktfeeder.dev/p530/protocol"
	"pktfeeder.dev/p530/waiter"
)

// ErrorCode is the flat result enumeration delivered to callers and
// continuations. Values match the original component's enum so logs
// and traces read the same way.
type ErrorCode uint8

const (
	OK             ErrorCode = 0
	Timeout        ErrorCode = 1
	SendFailed     ErrorCode = 2
	BootFailed     ErrorCode = 3
	NoFood         ErrorCode = 4
	DoorBlocked    ErrorCode = 7
	notImplemented ErrorCode = 8 // internal-only; never reaches a Continuation
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case Timeout:
		return "TIMEOUT"
	case SendFailed:
		return "SEND_FAILED"
	case BootFailed:
		return "BOOT_FAILED"
	case NoFood:
		return "NO_FOOD"
	case DoorBlocked:
		return "DOOR_BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Engine is the subset of the P530 engine an Action needs: submit a
// request, register interest in its reply, and read cached
// conditions for preconditions.
type Engine interface {
	Send(reqType uint8, payload []byte) (seq uint8)
	AddReportWaiter(typ, seq uint8, timeoutMS uint32, cb waiter.Callback)
	IsReady() bool
	HasFood() bool
}

// Continuation is invoked once an invocation reaches FINISHED, with
// the terminal ErrorCode and (for a successful terminal report) its
// payload.
type Continuation func(code ErrorCode, payload []byte)

// Descriptor is a table-driven description of one command: how to
// build its request payload, whether to expect a follow-up report,
// and how to interpret that report. A single Action value carries a
// Descriptor rather than each command having its own Go type.
type Descriptor struct {
	Name string
	// Request is the ReqType byte this action sends.
	Request uint8
	// FollowUp is the ReportType this action waits for after its ACK,
	// or 0 if the action finishes as soon as the ACK arrives.
	FollowUp uint8
	// SendTimeout bounds how long to wait for the device's ACK.
	SendTimeout time.Duration
	// ReportTimeout bounds how long to wait for FollowUp once the ACK
	// arrives. If nil, SendTimeout is reused.
	ReportTimeout func(args any) time.Duration
	// Build returns the request payload for args, or a non-OK code to
	// fail immediately without sending (a precondition failure).
	Build func(eng Engine, args any) (payload []byte, code ErrorCode)
	// HandleReport interprets a FollowUp payload. done=false means
	// the frame wasn't the terminal one yet (the original's
	// NOT_IMPLEMENTED) and the waiter stays registered for another
	// frame of the same type/seq.
	HandleReport func(payload []byte) (code ErrorCode, done bool)
}

// Action is a reusable, stateless command descriptor. Each call to
// Play starts an independent invocation; its state is captured for
// the duration of that invocation and released when its terminal
// continuation runs.
type Action struct {
	Descriptor Descriptor
}

// invocation holds the state of one in-flight Play call.
type invocation struct {
	onComplete, onError Continuation
}

func (inv *invocation) finish(code ErrorCode, payload []byte) {
	if code == OK {
		if inv.onComplete != nil {
			inv.onComplete(code, payload)
		}
		return
	}
	if inv.onError != nil {
		inv.onError(code, payload)
	}
}

// Play starts the action. If waitForComplete is false, the request is
// sent and the action finishes immediately without waiting for an
// ACK or report (the "no-wait" mode used by Init's setup steps);
// onComplete fires right away with no payload. If waitForComplete is
// true, Play registers waiters that drive the action through
// WAIT_ACK and (if Descriptor.FollowUp is set) WAIT_REPORT on later
// ticks; Play itself never blocks.
func (a *Action) Play(eng Engine, args any, waitForComplete bool, onComplete, onError Continuation) {
	d := a.Descriptor
	payload, code := d.Build(eng, args)
	if code != OK {
		inv := &invocation{onComplete: onComplete, onError: onError}
		inv.finish(code, nil)
		return
	}

	if !waitForComplete {
		eng.Send(d.Request, payload)
		inv := &invocation{onComplete: onComplete, onError: onError}
		inv.finish(OK, nil)
		return
	}

	seq := eng.Send(d.Request, payload)
	inv := &invocation{onComplete: onComplete, onError: onError}
	if seq == protocol.MaxSeq {
		inv.finish(SendFailed, nil)
		return
	}

	sendTimeoutMS := uint32(d.SendTimeout.Milliseconds())
	eng.AddReportWaiter(d.Request, seq, sendTimeoutMS, func(res waiter.Result, payload []byte) bool {
		if res == waiter.Timeout {
			inv.finish(Timeout, nil)
			return true
		}
		if len(payload) < 1 || payload[0] != 0x01 {
			return false // not our ACK yet
		}
		if d.FollowUp == 0 {
			inv.finish(OK, nil)
			return true
		}
		reportTimeout := d.SendTimeout
		if d.ReportTimeout != nil {
			reportTimeout = d.ReportTimeout(args)
		}
		reportTimeoutMS := uint32(reportTimeout.Milliseconds())
		eng.AddReportWaiter(d.FollowUp, seq, reportTimeoutMS, func(res waiter.Result, payload []byte) bool {
			if res == waiter.Timeout {
				inv.finish(Timeout, nil)
				return true
			}
			code, done := d.HandleReport(payload)
			if !done {
				return false
			}
			inv.finish(code, payload)
			return true
		})
		return true
	})
}
