package p530

import (
	"strings"
	"testing"

	"pktfeeder.dev/p530/action"
	"pktfeeder.dev/p530/protocol"
	"pktfeeder.dev/p530/status"
)

// fakeUART is an in-memory Port/UART double: writes land in tx, and
// feed() queues bytes for subsequent reads.
type fakeUART struct {
	tx        [][]byte
	rx        []byte
	writeFail bool
}

func (u *fakeUART) Available() (int, error) { return len(u.rx), nil }

func (u *fakeUART) ReadByte() (byte, error) {
	b := u.rx[0]
	u.rx = u.rx[1:]
	return b, nil
}

func (u *fakeUART) WriteArray(data []byte) error {
	if u.writeFail {
		return errWriteFailed
	}
	u.tx = append(u.tx, append([]byte(nil), data...))
	return nil
}

func (u *fakeUART) feed(b []byte) { u.rx = append(u.rx, b...) }

var errWriteFailed = &fakeErr{"write failed"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

// fakeClock is a manually-advanced Clock.
type fakeClock struct{ ms uint32 }

func (c *fakeClock) NowMS() uint32 { return c.ms }

func encodeFrame(t *testing.T, typ, seq uint8, payload []byte) []byte {
	t.Helper()
	buf, err := protocol.Encode(nil, typ, seq, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf
}

func TestSendAllocatesSequenceAndWritesFrame(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)

	seq := e.Send(protocol.ReqGetStatus, nil)
	if seq != 1 {
		t.Fatalf("first seq = %d, want 1", seq)
	}
	if len(u.tx) != 1 {
		t.Fatalf("tx = %+v", u.tx)
	}
	want := encodeFrame(t, protocol.ReqGetStatus, 1, nil)
	if string(u.tx[0]) != string(want) {
		t.Fatalf("tx[0] = % X, want % X", u.tx[0], want)
	}

	seq2 := e.Send(protocol.ReqGetStatus, nil)
	if seq2 != 2 {
		t.Fatalf("second seq = %d, want 2", seq2)
	}
}

func TestSendWrapsAfter254AndSkipsSentinels(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)
	e.txSeq = 254

	seq := e.Send(protocol.ReqGetStatus, nil)
	if seq != 1 {
		t.Fatalf("seq after 254 = %d, want wrap to 1", seq)
	}
}

func TestSendReturnsMaxSeqOnWriteFailure(t *testing.T) {
	u := &fakeUART{writeFail: true}
	e := New(u, &fakeClock{}, nil)
	seq := e.Send(protocol.ReqGetStatus, nil)
	if seq != protocol.MaxSeq {
		t.Fatalf("seq = %d, want MaxSeq on write failure", seq)
	}
}

func TestTickAppliesStatusReportToCache(t *testing.T) {
	u := &fakeUART{}
	clk := &fakeClock{}
	e := New(u, clk, nil)

	payload := make([]byte, protocol.StatusReportSize)
	payload[0] = 0x01 // door open
	payload[1] = 0x01 // food
	payload[2] = 0x01 // ready
	u.feed(encodeFrame(t, protocol.RepStatus, protocol.MaxSeq, payload))

	e.Tick()

	if !e.IsReady() {
		t.Fatal("IsReady() = false after status report")
	}
	if !e.HasFood() {
		t.Fatal("HasFood() = false after status report")
	}
}

func TestDoorIssueCallbackFiresOnBlockedCompletion(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)

	var issues []bool
	e.AddOnDoorIssueCallback(func(issue bool) { issues = append(issues, issue) })

	u.feed(encodeFrame(t, protocol.RepDoorOpenDone, protocol.MaxSeq, []byte{0x03, 0x00}))
	e.Tick()
	if len(issues) != 1 || issues[0] != true {
		t.Fatalf("issues = %+v, want [true]", issues)
	}

	u.feed(encodeFrame(t, protocol.RepDoorOpenDone, protocol.MaxSeq, []byte{0x02, 0x00}))
	e.Tick()
	if len(issues) != 2 || issues[1] != false {
		t.Fatalf("issues = %+v, want second entry false", issues)
	}
}

func TestDispenseCompleteUpdatesPortionCounters(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)

	u.feed(encodeFrame(t, protocol.RepDispenseDone, protocol.MaxSeq, []byte{0x02, 0x00, 0x01}))
	e.Tick()

	if e.LastPortionsDispensed() != 2 {
		t.Fatalf("LastPortionsDispensed() = %d, want 2", e.LastPortionsDispensed())
	}
	if e.TotalPortionsDispensed() != 2 {
		t.Fatalf("TotalPortionsDispensed() = %d, want 2", e.TotalPortionsDispensed())
	}

	u.feed(encodeFrame(t, protocol.RepDispenseDone, protocol.MaxSeq, []byte{0x03, 0x00, 0x01}))
	e.Tick()
	if e.TotalPortionsDispensed() != 5 {
		t.Fatalf("TotalPortionsDispensed() = %d, want 5 after second completion", e.TotalPortionsDispensed())
	}
}

func TestDispenseCompleteCallbackFiresWithPortionCount(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)

	var got []uint8
	e.AddOnDispenseCompleteCallback(func(portions uint8) { got = append(got, portions) })

	u.feed(encodeFrame(t, protocol.RepDispenseDone, protocol.MaxSeq, []byte{0x00, 0x00, 0x00})) // in progress
	e.Tick()
	if len(got) != 0 {
		t.Fatalf("callback fired on in-progress report: %+v", got)
	}

	u.feed(encodeFrame(t, protocol.RepDispenseDone, protocol.MaxSeq, []byte{0x02, 0x00, 0x01})) // done
	e.Tick()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("got = %+v, want [2]", got)
	}
}

func TestOpenDoorEndToEndOverFakeUART(t *testing.T) {
	u := &fakeUART{}
	clk := &fakeClock{}
	e := New(u, clk, nil)

	var gotCode action.ErrorCode
	var called bool
	e.OpenDoor(0x1E, func(code action.ErrorCode, payload []byte) {
		called = true
		gotCode = code
	}, nil)

	if len(u.tx) != 1 {
		t.Fatalf("tx = %+v", u.tx)
	}
	fr, _, err := protocol.Decode(u.tx[0])
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if fr.Type != protocol.ReqOpenDoor {
		t.Fatalf("tx type = 0x%02X, want ReqOpenDoor", fr.Type)
	}

	u.feed(encodeFrame(t, protocol.ReqOpenDoor, fr.Seq, []byte{0x01}))
	e.Tick()
	if called {
		t.Fatal("finished before door-complete report")
	}

	u.feed(encodeFrame(t, protocol.RepDoorOpenDone, fr.Seq, []byte{0x02, 0x00}))
	e.Tick()
	if !called || gotCode != action.OK {
		t.Fatalf("called=%v code=%v, want OK", called, gotCode)
	}
}

func TestDoorBlockedFiresGlobalDoorBlockedCallback(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)

	var blocked bool
	e.AddOnDoorBlockedCallback(func() { blocked = true })

	e.OpenDoor(0x1E, func(code action.ErrorCode, payload []byte) {
		t.Fatal("onComplete should not fire")
	}, nil)
	seq := func() uint8 {
		fr, _, _ := protocol.Decode(u.tx[0])
		return fr.Seq
	}()

	u.feed(encodeFrame(t, protocol.ReqOpenDoor, seq, []byte{0x01}))
	e.Tick()
	u.feed(encodeFrame(t, protocol.RepDoorOpenDone, seq, []byte{0x03, 0x00}))
	e.Tick()

	if !blocked {
		t.Fatal("global door-blocked callback did not fire")
	}
}

func TestDispenseFailsImmediatelyWithoutFoodAndFiresGlobalError(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)

	var gotCode action.ErrorCode
	e.AddOnErrorCallback(func(code action.ErrorCode) { gotCode = code })

	e.Dispense(2, func(code action.ErrorCode, payload []byte) {
		t.Fatal("onComplete should not fire")
	}, nil)

	if gotCode != action.NoFood {
		t.Fatalf("gotCode = %v, want NoFood", gotCode)
	}
	if len(u.tx) != 0 {
		t.Fatalf("tx = %+v, want no requests sent", u.tx)
	}
}

func TestDescribeIncludesTotalPortions(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)
	u.feed(encodeFrame(t, protocol.RepDispenseDone, protocol.MaxSeq, []byte{0x04, 0x00, 0x01}))
	e.Tick()

	var sb strings.Builder
	e.Describe(&sb)
	if !strings.Contains(sb.String(), "Total portions dispensed: 4") {
		t.Fatalf("Describe() = %q, missing portion count", sb.String())
	}
}

func TestSubscribeStatusReceivesDoorOpenTransitions(t *testing.T) {
	u := &fakeUART{}
	e := New(u, &fakeClock{}, nil)

	var events []status.Event
	e.SubscribeStatus(publisherFunc(func(ev status.Event, v bool) {
		events = append(events, ev)
	}))

	payload := make([]byte, protocol.StatusReportSize)
	payload[2] = 0x01 // ready
	u.feed(encodeFrame(t, protocol.RepStatus, protocol.MaxSeq, payload))
	e.Tick()

	if len(events) == 0 {
		t.Fatal("expected at least one status event on first report")
	}
}

type publisherFunc func(event status.Event, value bool)

func (f publisherFunc) Publish(event status.Event, value bool) { f(event, value) }
