// Package waiter implements the P530 Waiter Registry: registered
// interest in a future frame matching a (type, seq) key, with an
// optional deadline. Dispatch and Tick both run on the engine's
// single cooperative tick; callbacks may register new waiters but
// must not remove others.
package waiter

// Result is delivered to a Callback on dispatch or timeout.
type Result int

const (
	// OK means payload holds the matched frame's payload.
	OK Result = iota
	// Timeout means the waiter's deadline passed with no match.
	Timeout
)

// Callback is invoked when a waiter's type (and seq, if nonzero)
// matches a dispatched frame, or when its deadline expires. It
// returns true if the payload was the one awaited (the waiter is
// consumed), or false to leave the waiter registered for a later
// frame of the same type. The return value is ignored on Timeout.
type Callback func(result Result, payload []byte) (consumed bool)

// entry is a registered waiter.
type entry struct {
	typ      uint8
	seq      uint8 // 0 matches any seq
	deadline uint32 // 0 means no timeout
	callback Callback
}

// Registry holds outstanding waiters, preserving registration order.
type Registry struct {
	waiters []entry
}

// Register adds a waiter for frames of the given type. seq 0 matches
// any sequence number. deadline 0 means no timeout; otherwise it is
// an absolute time in the same units as the now passed to Tick.
func (r *Registry) Register(typ, seq uint8, deadline uint32, cb Callback) {
	r.waiters = append(r.waiters, entry{typ: typ, seq: seq, deadline: deadline, callback: cb})
}

// Dispatch offers (typ, seq, payload) to the currently registered
// waiters that match, in registration order, until one consumes it:
// exactly one waiter consumes each frame. A matching waiter is
// removed before its callback runs; if the callback returns false,
// the waiter is re-registered unchanged at its original position and
// the frame is offered to the next matching waiter. Waiters registered by a callback
// during this call do not participate in the current pass, and are
// ordered after every waiter that was already pending when Dispatch
// was called — including ones not yet visited at the point of
// registration — so a mid-pass Register can never cut ahead of an
// unrelated waiter that was already in line.
func (r *Registry) Dispatch(typ, seq uint8, payload []byte) {
	pending := r.waiters
	r.waiters = nil // Register calls made from callbacks below land here, kept apart from survivors until the full pass completes.
	var survivors []entry
	consumed := false
	for _, w := range pending {
		if consumed || w.typ != typ || (w.seq != 0 && w.seq != seq) {
			survivors = append(survivors, w)
			continue
		}
		if w.callback(OK, payload) {
			consumed = true
		} else {
			survivors = append(survivors, w)
		}
	}
	r.waiters = append(survivors, r.waiters...)
}

// Tick removes and fires every waiter whose nonzero deadline is at or
// before now.
func (r *Registry) Tick(now uint32) {
	if len(r.waiters) == 0 {
		return
	}
	live := r.waiters[:0]
	var expired []entry
	for _, w := range r.waiters {
		if w.deadline != 0 && int32(now-w.deadline) >= 0 {
			expired = append(expired, w)
			continue
		}
		live = append(live, w)
	}
	r.waiters = live
	for _, w := range expired {
		w.callback(Timeout, nil)
	}
}

// Len reports the number of outstanding waiters, for tests and
// diagnostics.
func (r *Registry) Len() int {
	return len(r.waiters)
}
