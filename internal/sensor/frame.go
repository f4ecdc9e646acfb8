// Package sensor reads the treadmill speed sensor over a USB serial link.
package sensor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/claude/treadmill/internal/models"
)

// FrameKind classifies one line received from the sensor.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameSample
	FrameAck
	FrameErr
)

// Frame is a parsed sensor line.
type Frame struct {
	Kind     FrameKind
	Sample   models.Sample
	Interval models.IntervalReply
}

var sampleRe = regexp.MustCompile(`^DIST:([\d.]+);SPEED:([\d.]+);TS:(\d+);DUR:(\d+)$`)

const (
	ackPrefix = "ACK_INTERVAL:"
	errPrefix = "ERR_INTERVAL"
)

// ParseLine decodes a line without its CRLF terminator. Unrecognized lines
// yield FrameUnknown and are not an error.
func ParseLine(line string) Frame {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, ackPrefix):
		v, err := strconv.Atoi(strings.TrimPrefix(line, ackPrefix))
		if err != nil {
			return Frame{}
		}
		return Frame{Kind: FrameAck, Interval: models.IntervalReply{Accepted: true, Value: v}}
	case strings.HasPrefix(line, errPrefix):
		return Frame{Kind: FrameErr}
	}

	m := sampleRe.FindStringSubmatch(line)
	if m == nil {
		return Frame{}
	}
	dist, err1 := strconv.ParseFloat(m[1], 64)
	speed, err2 := strconv.ParseFloat(m[2], 64)
	ts, err3 := strconv.ParseInt(m[3], 10, 64)
	dur, err4 := strconv.ParseInt(m[4], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Frame{}
	}
	return Frame{Kind: FrameSample, Sample: models.Sample{
		DistanceDelta: dist,
		Speed:         speed,
		Timestamp:     ts,
		FrameDuration: dur,
	}}
}

// IntervalCommand is the line that asks the sensor to change its sample interval.
func IntervalCommand(ms int) string {
	return fmt.Sprintf("SET_INTERVAL:%d\r\n", ms)
}
