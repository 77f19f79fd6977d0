// Package engine is the composition root of the remote-desktop core.
// A Node wires the managers together: signaling delivers SDP/ICE to
// the peer-connection facade, transport state drives session
// transitions, network samples feed capture adaptation, a periodic
// maintenance tick sweeps session keys for rotation (network samples do
// not influence rotation), and security threats terminate their sessions. The
// security and session managers never reference each other; the Node
// subscribes to threat events and applies the termination policy.
package engine

import (
	"errors"
	"time"

	"github.com/pion/logging"

	"github.com/cecdesk/core/pkg/capture"
	"github.com/cecdesk/core/pkg/input"
	"github.com/cecdesk/core/pkg/network"
	"github.com/cecdesk/core/pkg/rtc"
	"github.com/cecdesk/core/pkg/security"
)

// Engine package errors.
var (
	// ErrSignalingURLRequired is returned by Validate for a missing
	// endpoint.
	ErrSignalingURLRequired = errors.New("engine: signaling URL required")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrNotStarted is returned for operations requiring a running
	// node.
	ErrNotStarted = errors.New("engine: not started")
)

// DefaultMaintenanceInterval is the cadence of the background
// housekeeping tick (key rotation sweep, expired-code cleanup).
const DefaultMaintenanceInterval = 30 * time.Second

// Config holds all configuration for a Node.
type Config struct {
	// SignalingURL is the websocket signaling endpoint. Required.
	SignalingURL string

	// DeviceName, Platform, Version describe this device.
	DeviceName string
	Platform   string
	Version    string

	// StunServers and TurnServers seed the network manager.
	StunServers []network.StunServer
	TurnServers []network.TurnServer

	// Security tunes the security manager.
	Security security.Config

	// Adaptive bounds the capture adaptation controller.
	Adaptive capture.AdaptiveConfig

	// CaptureDriver is the platform capture back-end. Optional; the
	// controlled side needs it to serve screens.
	CaptureDriver capture.Driver

	// InputInjector is the platform input back-end. Optional; the
	// controlled side needs it to apply remote input.
	InputInjector input.Injector

	// TransportFactory builds peer transports. Default: the bundled
	// pion adapter.
	TransportFactory rtc.TransportFactory

	// NetworkProber overrides the connectivity prober (testing).
	NetworkProber network.Prober

	// MaintenanceInterval is the housekeeping cadence. Default:
	// DefaultMaintenanceInterval.
	MaintenanceInterval time.Duration

	// LoggerFactory scopes every manager's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SignalingURL == "" {
		return ErrSignalingURLRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if c.DeviceName == "" {
		c.DeviceName = "cecdesk-device"
	}
	if c.Platform == "" {
		c.Platform = "unknown"
	}
	if c.Version == "" {
		c.Version = "0.0.0"
	}
}
