package kiosk

import "time"

// Manual reset gesture: TapCount taps within TapWindow inside the top-left
// TapRegion x TapRegion pixel square.
const (
	TapCount  = 3
	TapWindow = 600 * time.Millisecond
	TapRegion = 100
)

// TapDetector recognizes the manual reset gesture.
type TapDetector struct {
	taps []time.Time
}

// Tap records a pointer press and reports whether it completed the gesture.
// Presses outside the reset corner are ignored.
func (d *TapDetector) Tap(x, y float64, at time.Time) bool {
	if x < 0 || y < 0 || x >= TapRegion || y >= TapRegion {
		return false
	}
	kept := d.taps[:0]
	for _, t := range d.taps {
		if at.Sub(t) < TapWindow {
			kept = append(kept, t)
		}
	}
	d.taps = append(kept, at)
	if len(d.taps) >= TapCount {
		d.taps = d.taps[:0]
		return true
	}
	return false
}
