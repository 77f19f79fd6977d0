package capture

import (
	"errors"
	"sync"

	"github.com/pion/logging"
)

// Capture package errors.
var (
	// ErrNoDriver is returned when no capture driver is configured.
	ErrNoDriver = errors.New("capture: no driver configured")

	// ErrAlreadyCapturing is returned when a capture run is in
	// progress.
	ErrAlreadyCapturing = errors.New("capture: already capturing")

	// ErrNotCapturing is returned when no capture run is in progress.
	ErrNotCapturing = errors.New("capture: not capturing")
)

// Driver is the platform capture back-end. Implementations enumerate
// displays, deliver frames to the handler passed to StartCapture, and
// accept in-flight reconfiguration.
type Driver interface {
	// Displays enumerates attached displays.
	Displays() ([]DisplayInfo, error)

	// StartCapture begins delivering frames for the display.
	StartCapture(displayID string, opts Options, onFrame func(VideoFrame)) error

	// Reconfigure applies new options to a running capture.
	Reconfigure(opts Options) error

	// StopCapture halts frame delivery.
	StopCapture() error
}

// Capturer drives one capture run: it owns the driver binding, applies
// presets and adaptive adjustments, and counts delivered frames.
type Capturer struct {
	log    logging.LeveledLogger
	driver Driver

	mu        sync.Mutex
	opts      Options
	capturing bool
	display   string
	frames    uint64

	onFrame func(VideoFrame)
}

// CapturerConfig configures a Capturer.
type CapturerConfig struct {
	// Driver is the platform capture back-end. Required for capture
	// runs; Displays and Start fail without it.
	Driver Driver

	// Options is the initial capture configuration. Zero value:
	// DefaultOptions().
	Options Options

	// OnFrame receives every captured frame after bookkeeping.
	OnFrame func(VideoFrame)

	// LoggerFactory scopes the capturer's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// NewCapturer creates a capturer bound to a driver.
func NewCapturer(config CapturerConfig) *Capturer {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	opts := config.Options
	if opts.Width == 0 || opts.Height == 0 || opts.FrameRate == 0 {
		opts = DefaultOptions()
	}
	opts.FrameRate = ClampFrameRate(opts.FrameRate)

	return &Capturer{
		log:     config.LoggerFactory.NewLogger("capture"),
		driver:  config.Driver,
		opts:    opts,
		onFrame: config.OnFrame,
	}
}

// Displays enumerates the driver's displays.
func (c *Capturer) Displays() ([]DisplayInfo, error) {
	if c.driver == nil {
		return nil, ErrNoDriver
	}
	return c.driver.Displays()
}

// Start begins capturing the display with the current options.
func (c *Capturer) Start(displayID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return ErrNoDriver
	}
	if c.capturing {
		return ErrAlreadyCapturing
	}

	opts := c.opts
	if err := c.driver.StartCapture(displayID, opts, c.handleFrame); err != nil {
		return err
	}
	c.capturing = true
	c.display = displayID
	c.log.Infof("capturing display %s at %dx%d %dfps",
		displayID, opts.Width, opts.Height, opts.FrameRate)
	return nil
}

// Stop halts the capture run.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return ErrNotCapturing
	}
	if err := c.driver.StopCapture(); err != nil {
		return err
	}
	c.capturing = false
	c.log.Infof("capture stopped")
	return nil
}

// handleFrame counts and forwards one frame.
func (c *Capturer) handleFrame(frame VideoFrame) {
	c.mu.Lock()
	c.frames++
	handler := c.onFrame
	c.mu.Unlock()

	if handler != nil {
		handler(frame)
	}
}

// ApplyPreset swaps the capture configuration to a preset,
// reconfiguring the driver when a run is live.
func (c *Capturer) ApplyPreset(p Preset) error {
	return c.setOptions(p.Options())
}

// SetFrameRate sets a manual frame rate, clamped to the supported
// range.
func (c *Capturer) SetFrameRate(fps int) error {
	c.mu.Lock()
	opts := c.opts
	c.mu.Unlock()
	opts.FrameRate = ClampFrameRate(fps)
	return c.setOptions(opts)
}

// Apply folds an adaptive adjustment into the capture configuration.
func (c *Capturer) Apply(adj Adjustment) error {
	c.mu.Lock()
	opts := c.opts
	c.mu.Unlock()
	opts.BitrateKbps = adj.BitrateKbps
	opts.FrameRate = ClampFrameRate(adj.FrameRate)
	return c.setOptions(opts)
}

func (c *Capturer) setOptions(opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opts = opts
	if !c.capturing {
		return nil
	}
	if err := c.driver.Reconfigure(opts); err != nil {
		return err
	}
	c.log.Debugf("reconfigured: %dx%d %dfps %dkbps",
		opts.Width, opts.Height, opts.FrameRate, opts.BitrateKbps)
	return nil
}

// Options returns the current capture configuration.
func (c *Capturer) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// IsCapturing reports whether a run is live.
func (c *Capturer) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// FrameCount returns how many frames the driver has delivered.
func (c *Capturer) FrameCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}
