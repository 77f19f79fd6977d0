// Package input models remote input events and forwards them to the
// platform injector, which is an external collaborator behind the
// Injector interface.
package input

import (
	"errors"
	"sync"

	"github.com/pion/logging"
)

// ErrNoInjector is returned when no platform injector is configured.
var ErrNoInjector = errors.New("input: no injector configured")

// DefaultMaxInputDelay is the latency budget for injected events.
const DefaultMaxInputDelay = 100 // milliseconds

// MouseButton identifies a mouse button.
type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonRight
	ButtonMiddle
)

// String returns a human-readable name for the button.
func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "Left"
	case ButtonRight:
		return "Right"
	case ButtonMiddle:
		return "Middle"
	default:
		return "Unknown"
	}
}

// KeyModifiers is the modifier-key state accompanying a key event.
type KeyModifiers struct {
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
	Shift bool `json:"shift"`
	Meta  bool `json:"meta"`
}

// EventKind tags an input event.
type EventKind string

const (
	EventMouseMove  EventKind = "mouse_move"
	EventMouseClick EventKind = "mouse_click"
	EventMouseWheel EventKind = "mouse_wheel"
	EventKeyDown    EventKind = "key_down"
	EventKeyUp      EventKind = "key_up"
	EventKeyPress   EventKind = "key_press"
)

// Event is one remote input event.
type Event struct {
	Kind      EventKind    `json:"kind"`
	X         int          `json:"x,omitempty"`
	Y         int          `json:"y,omitempty"`
	Button    MouseButton  `json:"button,omitempty"`
	DeltaX    int          `json:"delta_x,omitempty"`
	DeltaY    int          `json:"delta_y,omitempty"`
	Key       string       `json:"key,omitempty"`
	Modifiers KeyModifiers `json:"modifiers,omitzero"`
}

// KeyboardLayout names the active keyboard layout.
type KeyboardLayout string

const (
	LayoutUS KeyboardLayout = "us"
	LayoutUK KeyboardLayout = "uk"
	LayoutDE KeyboardLayout = "de"
	LayoutFR KeyboardLayout = "fr"
	LayoutJP KeyboardLayout = "jp"
	LayoutCN KeyboardLayout = "cn"
)

// Injector is the platform input back-end.
type Injector interface {
	MouseMove(x, y int) error
	MouseClick(button MouseButton, x, y int) error
	MouseWheel(deltaX, deltaY int) error
	KeyDown(key string, mods KeyModifiers) error
	KeyUp(key string, mods KeyModifiers) error
	KeyPress(key string, mods KeyModifiers) error
}

// Controller dispatches remote events to the injector.
type Controller struct {
	log logging.LeveledLogger

	mu       sync.RWMutex
	injector Injector
	maxDelay int
	layout   KeyboardLayout
}

// ControllerConfig configures the input controller.
type ControllerConfig struct {
	// Injector is the platform back-end. Required for dispatch.
	Injector Injector

	// MaxInputDelayMs is the latency budget. Default:
	// DefaultMaxInputDelay.
	MaxInputDelayMs int

	// Layout is the keyboard layout. Default: LayoutUS.
	Layout KeyboardLayout

	// LoggerFactory scopes the controller's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// NewController creates an input controller.
func NewController(config ControllerConfig) *Controller {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if config.MaxInputDelayMs <= 0 {
		config.MaxInputDelayMs = DefaultMaxInputDelay
	}
	if config.Layout == "" {
		config.Layout = LayoutUS
	}
	return &Controller{
		log:      config.LoggerFactory.NewLogger("input"),
		injector: config.Injector,
		maxDelay: config.MaxInputDelayMs,
		layout:   config.Layout,
	}
}

// ProcessRemoteEvent dispatches one event to the injector.
func (c *Controller) ProcessRemoteEvent(ev Event) error {
	c.mu.RLock()
	injector := c.injector
	c.mu.RUnlock()
	if injector == nil {
		return ErrNoInjector
	}

	switch ev.Kind {
	case EventMouseMove:
		return injector.MouseMove(ev.X, ev.Y)
	case EventMouseClick:
		return injector.MouseClick(ev.Button, ev.X, ev.Y)
	case EventMouseWheel:
		return injector.MouseWheel(ev.DeltaX, ev.DeltaY)
	case EventKeyDown:
		return injector.KeyDown(ev.Key, ev.Modifiers)
	case EventKeyUp:
		return injector.KeyUp(ev.Key, ev.Modifiers)
	case EventKeyPress:
		return injector.KeyPress(ev.Key, ev.Modifiers)
	default:
		c.log.Warnf("dropping unknown input event kind %q", ev.Kind)
		return nil
	}
}

// SetMaxInputDelay replaces the latency budget.
func (c *Controller) SetMaxInputDelay(ms int) {
	c.mu.Lock()
	c.maxDelay = ms
	c.mu.Unlock()
}

// MaxInputDelay returns the latency budget in milliseconds.
func (c *Controller) MaxInputDelay() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxDelay
}

// SetLayout replaces the keyboard layout.
func (c *Controller) SetLayout(layout KeyboardLayout) {
	c.mu.Lock()
	c.layout = layout
	c.mu.Unlock()
}

// Layout returns the keyboard layout.
func (c *Controller) Layout() KeyboardLayout {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.layout
}
