package action

import (
	"time"

	"pktfeeder.dev/p530/protocol"
)

// Default ACK wait for any command; the device acknowledges
// immediately on receipt, well inside this window.
const defaultSendTimeout = 2 * time.Second

// LedCtlArgs parametrizes LedCtl.
type LedCtlArgs struct {
	Target      protocol.LedCtlTarget
	OnMs, OffMs uint16
	Count       uint16
}

// LedCtl drives the feeder's upper/lower LED or its buzzer. It has no
// follow-up report: the ACK is the whole story.
var LedCtl = &Action{Descriptor: Descriptor{
	Name:        "LedCtl",
	Request:     protocol.ReqLedCtl,
	SendTimeout: defaultSendTimeout,
	Build: func(eng Engine, args any) ([]byte, ErrorCode) {
		a := args.(LedCtlArgs)
		p := make([]byte, 7)
		p[0] = byte(a.Target)
		p[1] = byte(a.OnMs >> 8)
		p[2] = byte(a.OnMs)
		p[3] = byte(a.OffMs >> 8)
		p[4] = byte(a.OffMs)
		p[5] = byte(a.Count >> 8)
		p[6] = byte(a.Count)
		return p, OK
	},
}}

// DoorArgs parametrizes DoorOpen and DoorClose.
type DoorArgs struct {
	Duration uint8
}

func doorHandleReport(payload []byte) (ErrorCode, bool) {
	if len(payload) < 1 {
		return OK, false
	}
	if payload[0] == 0x02 {
		return OK, true
	}
	return DoorBlocked, true
}

// DoorOpen opens the food door.
var DoorOpen = &Action{Descriptor: Descriptor{
	Name:        "DoorOpen",
	Request:     protocol.ReqOpenDoor,
	FollowUp:    protocol.RepDoorOpenDone,
	SendTimeout: defaultSendTimeout,
	ReportTimeout: func(any) time.Duration {
		return 10 * time.Second
	},
	Build: func(eng Engine, args any) ([]byte, ErrorCode) {
		a := args.(DoorArgs)
		return []byte{a.Duration}, OK
	},
	HandleReport: doorHandleReport,
}}

// DoorClose closes the food door.
var DoorClose = &Action{Descriptor: Descriptor{
	Name:        "DoorClose",
	Request:     protocol.ReqCloseDoor,
	FollowUp:    protocol.RepDoorCloseDone,
	SendTimeout: defaultSendTimeout,
	ReportTimeout: func(any) time.Duration {
		return 10 * time.Second
	},
	Build: func(eng Engine, args any) ([]byte, ErrorCode) {
		a := args.(DoorArgs)
		return []byte{a.Duration}, OK
	},
	HandleReport: doorHandleReport,
}}

// DispenseArgs parametrizes Dispense.
type DispenseArgs struct {
	Portions uint8
}

// Dispense runs the auger to release Portions units of food.
// Precondition: HasFood(); fails immediately with NoFood otherwise.
var Dispense = &Action{Descriptor: Descriptor{
	Name:        "Dispense",
	Request:     protocol.ReqDispense,
	FollowUp:    protocol.RepDispenseDone,
	SendTimeout: defaultSendTimeout,
	ReportTimeout: func(args any) time.Duration {
		a := args.(DispenseArgs)
		return time.Duration(a.Portions) * 3 * time.Second
	},
	Build: func(eng Engine, args any) ([]byte, ErrorCode) {
		if !eng.HasFood() {
			return nil, NoFood
		}
		a := args.(DispenseArgs)
		return []byte{a.Portions, 0x01, 0x01, 0x50}, OK
	},
	HandleReport: func(payload []byte) (ErrorCode, bool) {
		if len(payload) < 3 {
			return OK, false
		}
		if payload[2] != 0x01 {
			return OK, false // still in progress
		}
		return OK, true
	},
}}

// GetStatus requests a fresh StatusReport. Its completion is driven
// entirely by the STATUS report payload reaching the required size;
// the report's content is applied to the status cache by the engine
// independently of this waiter.
var GetStatus = &Action{Descriptor: Descriptor{
	Name:        "GetStatus",
	Request:     protocol.ReqGetStatus,
	FollowUp:    protocol.RepStatus,
	SendTimeout: defaultSendTimeout,
	ReportTimeout: func(any) time.Duration {
		return defaultSendTimeout
	},
	Build: func(eng Engine, args any) ([]byte, ErrorCode) {
		return nil, OK
	},
	HandleReport: func(payload []byte) (ErrorCode, bool) {
		if len(payload) < protocol.StatusReportSize {
			return OK, false
		}
		return OK, true
	},
}}

// Fixed setup payloads for Init, reproduced exactly from the original
// component's initialization sequence.
var (
	motorConfigPayload = []byte{0x05, 0x7E}
	setParamsAPayload  = []byte{0x00, 0x05, 0x00, 0x05}
	setParamAPayload   = []byte{0x00, 0x05}
	setParamsBPayload  = []byte{0x00, 0xFF, 0x00, 0xFF}
	setParamBPayload   = []byte{0xFF, 0xFF}
	motorParamsPayload = []byte{0x00, 0x3C, 0x01, 0x90, 0x0F, 0x01, 0x22, 0x22, 0x01, 0xF4, 0x0F, 0x01}
)

func fixedPayloadAction(name string, req uint8, payload []byte) *Action {
	return &Action{Descriptor: Descriptor{
		Name:        name,
		Request:     req,
		SendTimeout: defaultSendTimeout,
		Build: func(eng Engine, args any) ([]byte, ErrorCode) {
			return payload, OK
		},
	}}
}

var (
	initGetStatus   = fixedPayloadAction("Init.GetStatus", protocol.ReqGetStatus, nil)
	initMotorConfig = fixedPayloadAction("Init.MotorConfig", protocol.ReqMotorConfig, motorConfigPayload)
	initSetParamsA  = fixedPayloadAction("Init.SetParamsA", protocol.ReqSetParamsA, setParamsAPayload)
	initSetParamA   = fixedPayloadAction("Init.SetParamA", protocol.ReqSetParamA, setParamAPayload)
	initSetParamsB  = fixedPayloadAction("Init.SetParamsB", protocol.ReqSetParamsB, setParamsBPayload)
	initSetParamB   = fixedPayloadAction("Init.SetParamB", protocol.ReqSetParamB, setParamBPayload)
	initMotorParams = fixedPayloadAction("Init.MotorParams", protocol.ReqMotorParams, motorParamsPayload)
)

// Init runs the device's scripted startup sequence: a batch of
// fire-and-forget configuration commands, followed by a GET_STATUS
// whose ACK (and subsequent STATUS report) is awaited before
// onComplete/onError runs.
func Init(eng Engine, onComplete, onError Continuation) {
	for _, step := range []*Action{
		initGetStatus,
		initMotorConfig,
		initSetParamsA,
		initSetParamA,
		initSetParamsB,
		initSetParamB,
		initMotorParams,
	} {
		step.Play(eng, nil, false, nil, nil)
	}
	GetStatus.Play(eng, nil, true, onComplete, onError)
}
