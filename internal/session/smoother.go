// Package session accumulates the telemetry of one treadmill run.
package session

// SmoothingWindow is the number of raw speed readings averaged by Smoother.
const SmoothingWindow = 3

// Smoother returns the trailing mean of the last SmoothingWindow speeds.
// The zero value is ready to use.
type Smoother struct {
	buf [SmoothingWindow]float64
	n   int // readings held, <= SmoothingWindow
	pos int // next write slot
}

// Push records a raw speed and returns the smoothed speed.
func (s *Smoother) Push(speed float64) float64 {
	s.buf[s.pos] = speed
	s.pos = (s.pos + 1) % SmoothingWindow
	if s.n < SmoothingWindow {
		s.n++
	}
	return s.Value()
}

// Value is the mean of the buffered readings, or 0 when empty.
func (s *Smoother) Value() float64 {
	if s.n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < s.n; i++ {
		sum += s.buf[i]
	}
	return sum / float64(s.n)
}

// Len reports how many readings are buffered.
func (s *Smoother) Len() int { return s.n }

// Reset empties the buffer.
func (s *Smoother) Reset() { *s = Smoother{} }
