package p530

import "time"

// SystemClock is a Clock backed by the OS monotonic clock, truncated
// to milliseconds. Waiter deadline arithmetic tolerates the uint32
// wraparound this implies after about 49 days of continuous uptime.
type SystemClock struct{}

var clockStart = time.Now()

// NowMS returns the monotonic time in milliseconds elapsed since the
// package was initialized, truncated to uint32.
func (SystemClock) NowMS() uint32 {
	return uint32(time.Since(clockStart).Milliseconds())
}
