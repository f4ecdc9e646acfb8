package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/claude/treadmill/internal/models"
)

// ErrNoPort is returned by the serial opener when no USB serial device is attached.
var ErrNoPort = errors.New("no USB serial port found")

// Link defaults.
const (
	DefaultBaudRate  = 115200
	DefaultWatchdog  = time.Second
	DefaultReconnect = time.Second
	readTick         = 100 * time.Millisecond

	// maxLine bounds a partial frame; longer runs without a newline are garbage.
	maxLine = 1024
)

// Port is an open sensor link. Read returns (0, nil) when nothing arrived
// within its read timeout.
type Port interface {
	io.ReadWriteCloser
}

// Opener connects to the sensor and names the device it opened.
type Opener func() (Port, string, error)

// SerialOpener opens device name, or the first USB serial port when name is empty.
func SerialOpener(name string, baud int) Opener {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return func() (Port, string, error) {
		dev := name
		if dev == "" {
			var err error
			if dev, err = discoverUSB(); err != nil {
				return nil, "", err
			}
		}
		p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, dev, fmt.Errorf("opening %s: %w", dev, err)
		}
		if err := p.SetReadTimeout(readTick); err != nil {
			p.Close()
			return nil, dev, fmt.Errorf("setting read timeout on %s: %w", dev, err)
		}
		return p, dev, nil
	}
}

func discoverUSB() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("listing serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	return "", ErrNoPort
}

// FeedConfig configures a Feed.
type FeedConfig struct {
	Open      Opener
	OnSample  func(models.Sample)
	Watchdog  time.Duration
	Reconnect time.Duration
	Log       *slog.Logger
}

// Feed keeps the sensor link alive: it reconnects after failures, closes a
// silent link once the watchdog expires, forwards samples and replays the
// requested sample interval on every connect.
type Feed struct {
	cfg FeedConfig
	log *slog.Logger

	mu       sync.Mutex
	port     Port
	device   string
	interval int
}

// NewFeed returns a Feed. Nothing is opened until Run.
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = DefaultWatchdog
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = DefaultReconnect
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.OnSample == nil {
		cfg.OnSample = func(models.Sample) {}
	}
	return &Feed{cfg: cfg, log: cfg.Log}
}

// Run connects and reads until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	for {
		port, dev, err := f.cfg.Open()
		if err != nil {
			f.log.Warn("sensor unavailable", "device", dev, "error", err)
		} else {
			f.log.Info("sensor connected", "device", dev)
			f.serve(ctx, port, dev)
			f.log.Info("sensor disconnected", "device", dev)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.Reconnect):
		}
	}
}

// Connected reports the open device name, empty when disconnected.
func (f *Feed) Connected() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.device
}

// SetInterval asks the sensor for a new sample interval. When the link is
// down the value is kept and sent on the next connect.
func (f *Feed) SetInterval(ms int) error {
	if ms < models.MinSampleFrequencyMs || ms > models.MaxSampleFrequencyMs {
		return fmt.Errorf("sample interval %d ms out of range [%d, %d]", ms, models.MinSampleFrequencyMs, models.MaxSampleFrequencyMs)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = ms
	if f.port == nil {
		return nil
	}
	return f.writeInterval()
}

// writeInterval must be called with mu held.
func (f *Feed) writeInterval() error {
	if _, err := io.WriteString(f.port, IntervalCommand(f.interval)); err != nil {
		return fmt.Errorf("writing interval to %s: %w", f.device, err)
	}
	return nil
}

func (f *Feed) serve(ctx context.Context, port Port, dev string) {
	f.mu.Lock()
	f.port, f.device = port, dev
	if f.interval > 0 {
		if err := f.writeInterval(); err != nil {
			f.log.Warn("failed to send sample interval", "error", err)
		}
	}
	f.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		stop()
		f.mu.Lock()
		f.port, f.device = nil, ""
		f.mu.Unlock()
		port.Close()
	}()

	var pending []byte
	buf := make([]byte, 256)
	last := time.Now()
	for {
		n, err := port.Read(buf)
		if n > 0 {
			last = time.Now()
			pending = f.consume(pending, buf[:n])
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				f.log.Warn("sensor read failed", "device", dev, "error", err)
			}
			return
		}
		if n == 0 && time.Since(last) > f.currentWatchdog() {
			f.log.Warn("sensor watchdog expired", "device", dev, "silence", time.Since(last).Round(time.Millisecond))
			return
		}
	}
}

func (f *Feed) currentWatchdog() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchdog()
}

// watchdog is the longest tolerated silence. A slow sample interval stretches
// it. Must be called with mu held.
func (f *Feed) watchdog() time.Duration {
	w := f.cfg.Watchdog
	if iv := 2 * time.Duration(f.interval) * time.Millisecond; iv > w {
		w = iv
	}
	return w
}

// consume appends chunk to the partial frame in pending, dispatches complete
// lines and returns what is left. An unterminated run longer than maxLine is
// dropped.
func (f *Feed) consume(pending, chunk []byte) []byte {
	pending = f.drain(append(pending, chunk...))
	if len(pending) > maxLine {
		f.log.Debug("discarding unterminated sensor data", "bytes", len(pending))
		return pending[:0]
	}
	return pending
}

// drain dispatches every complete line in buf and returns the remainder.
func (f *Feed) drain(buf []byte) []byte {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return buf
		}
		line := string(bytes.TrimRight(buf[:i], "\r"))
		buf = buf[i+1:]
		f.dispatch(line)
	}
}

func (f *Feed) dispatch(line string) {
	fr := ParseLine(line)
	switch fr.Kind {
	case FrameSample:
		f.cfg.OnSample(fr.Sample)
	case FrameAck:
		f.log.Info("sensor interval acknowledged", "ms", fr.Interval.Value)
	case FrameErr:
		f.log.Warn("sensor rejected sample interval")
	default:
		if line != "" {
			f.log.Debug("ignoring sensor line", "line", line)
		}
	}
}
