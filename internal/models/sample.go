package models

// Sample is one telemetry frame from the treadmill sensor.
type Sample struct {
	DistanceDelta float64 `json:"distance_delta"` // metres since previous frame
	Speed         float64 `json:"speed"`          // km/h, instantaneous
	Timestamp     int64   `json:"timestamp"`      // sensor uptime in ms
	FrameDuration int64   `json:"frame_duration"` // ms covered by this frame
}

// IntervalReply is the sensor's answer to a sample-rate change request.
type IntervalReply struct {
	Accepted bool `json:"accepted"`
	Value    int  `json:"value,omitempty"`
}
