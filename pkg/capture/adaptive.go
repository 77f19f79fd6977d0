package capture

import (
	"sync"

	"github.com/pion/logging"
)

// NetworkSample is the slice of a link measurement the adaptive
// controller consumes.
type NetworkSample struct {
	// AvailableBandwidthKbps is the estimated link capacity.
	AvailableBandwidthKbps float64

	// PacketLoss is the loss percentage.
	PacketLoss float64

	// RTTMs is the round-trip time in milliseconds.
	RTTMs float64
}

// AdaptiveConfig bounds the controller's outputs.
type AdaptiveConfig struct {
	MinBitrateKbps    int
	MaxBitrateKbps    int
	TargetBitrateKbps int
	MinFrameRate      int
	MaxFrameRate      int
	TargetFrameRate   int
}

// DefaultAdaptiveConfig returns the stock controller bounds.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		MinBitrateKbps:    500,
		MaxBitrateKbps:    8000,
		TargetBitrateKbps: 4000,
		MinFrameRate:      15,
		MaxFrameRate:      60,
		TargetFrameRate:   30,
	}
}

// applyDefaults fills missing fields and repairs inverted bounds so
// the controller's clamps always hold.
func (c *AdaptiveConfig) applyDefaults() {
	d := DefaultAdaptiveConfig()
	if c.MinBitrateKbps <= 0 {
		c.MinBitrateKbps = d.MinBitrateKbps
	}
	if c.MaxBitrateKbps <= 0 {
		c.MaxBitrateKbps = d.MaxBitrateKbps
	}
	if c.MaxBitrateKbps < c.MinBitrateKbps {
		c.MaxBitrateKbps = c.MinBitrateKbps
	}
	if c.TargetBitrateKbps <= 0 {
		c.TargetBitrateKbps = d.TargetBitrateKbps
	}
	if c.MinFrameRate <= 0 {
		c.MinFrameRate = d.MinFrameRate
	}
	if c.MaxFrameRate <= 0 {
		c.MaxFrameRate = d.MaxFrameRate
	}
	if c.MaxFrameRate < c.MinFrameRate {
		c.MaxFrameRate = c.MinFrameRate
	}
	if c.TargetFrameRate <= 0 {
		c.TargetFrameRate = d.TargetFrameRate
	}
}

// Adjustment is one applied reconfiguration.
type Adjustment struct {
	BitrateKbps int
	FrameRate   int
}

// bitrateDeadband is the minimum bitrate delta worth applying, in
// kbps. Frame-rate changes always apply.
const bitrateDeadband = 200

// AdaptiveController turns network samples into bitrate and frame-rate
// targets inside the configured bounds.
type AdaptiveController struct {
	log logging.LeveledLogger

	mu      sync.Mutex
	config  AdaptiveConfig
	bitrate int
	fps     int

	// onAdjust is called with every applied change.
	onAdjust func(Adjustment)
}

// NewAdaptiveController creates a controller at the config's targets.
func NewAdaptiveController(config AdaptiveConfig, loggerFactory logging.LoggerFactory, onAdjust func(Adjustment)) *AdaptiveController {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	config.applyDefaults()
	return &AdaptiveController{
		log:      loggerFactory.NewLogger("capture"),
		config:   config,
		bitrate:  clampInt(config.TargetBitrateKbps, config.MinBitrateKbps, config.MaxBitrateKbps),
		fps:      clampInt(config.TargetFrameRate, config.MinFrameRate, config.MaxFrameRate),
		onAdjust: onAdjust,
	}
}

// Ingest folds one network sample into the controller. It returns the
// applied adjustment, or nil when the change fell inside the deadband.
//
// The rule: target bitrate is 80% of available bandwidth clamped to
// the configured range; frame rate is the target scaled by 0.7 under
// heavy loss/RTT, 0.85 under moderate, else 1.0.
func (a *AdaptiveController) Ingest(sample NetworkSample) *Adjustment {
	a.mu.Lock()
	defer a.mu.Unlock()

	target := clampInt(int(0.8*sample.AvailableBandwidthKbps),
		a.config.MinBitrateKbps, a.config.MaxBitrateKbps)

	factor := 1.0
	switch {
	case sample.PacketLoss > 5 || sample.RTTMs > 150:
		factor = 0.7
	case sample.PacketLoss > 2 || sample.RTTMs > 100:
		factor = 0.85
	}
	fps := clampInt(int(float64(a.config.TargetFrameRate)*factor),
		a.config.MinFrameRate, a.config.MaxFrameRate)

	bitrateDelta := target - a.bitrate
	if bitrateDelta < 0 {
		bitrateDelta = -bitrateDelta
	}
	if bitrateDelta <= bitrateDeadband && fps == a.fps {
		return nil
	}

	a.bitrate = target
	a.fps = fps
	adj := Adjustment{BitrateKbps: target, FrameRate: fps}
	a.log.Debugf("adapting: bitrate=%dkbps fps=%d (bw=%.0f loss=%.1f rtt=%.0f)",
		target, fps, sample.AvailableBandwidthKbps, sample.PacketLoss, sample.RTTMs)
	if a.onAdjust != nil {
		a.onAdjust(adj)
	}
	return &adj
}

// Current returns the controller's present bitrate and frame rate.
func (a *AdaptiveController) Current() Adjustment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Adjustment{BitrateKbps: a.bitrate, FrameRate: a.fps}
}

// Config returns the controller's bounds.
func (a *AdaptiveController) Config() AdaptiveConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
