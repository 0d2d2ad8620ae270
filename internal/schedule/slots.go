package schedule

import "iter"

// GenerateTimeSlots yields start, start+interval, ... up to and including
// end when end is reachable. Each range over the result starts again from
// start. A non-positive interval uses DefaultIntervalMinutes.
func GenerateTimeSlots(start, end Clock, interval int) iter.Seq[Clock] {
	if interval <= 0 {
		interval = DefaultIntervalMinutes
	}
	return func(yield func(Clock) bool) {
		for c := start; c <= end; c += Clock(interval) {
			if !yield(c) {
				return
			}
		}
	}
}
