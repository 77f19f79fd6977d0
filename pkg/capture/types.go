// Package capture owns the capture-side policy surfaces: quality
// presets, capture options, display and frame metadata, and the
// adaptive bitrate controller that reacts to network samples. The
// platform capture driver itself is an external collaborator behind
// the Driver interface.
package capture

import "time"

// VideoCodec tags the codec requested from the capture driver.
type VideoCodec string

const (
	CodecH264 VideoCodec = "h264"
	CodecH265 VideoCodec = "h265"
	CodecVP9  VideoCodec = "vp9"
)

// FrameFormat is the pixel layout of a captured frame.
type FrameFormat int

const (
	FormatRGBA FrameFormat = iota
	FormatBGRA
	FormatNV12
	FormatI420
)

// String returns a human-readable name for the frame format.
func (f FrameFormat) String() string {
	switch f {
	case FormatRGBA:
		return "RGBA"
	case FormatBGRA:
		return "BGRA"
	case FormatNV12:
		return "NV12"
	case FormatI420:
		return "I420"
	default:
		return "Unknown"
	}
}

// DisplayInfo describes one attached display.
type DisplayInfo struct {
	ID          string
	Name        string
	Width       int
	Height      int
	IsPrimary   bool
	RefreshRate int
}

// VideoFrame is the metadata (plus driver-owned bytes) for one
// captured frame. The core never inspects Data beyond its length.
type VideoFrame struct {
	ID        uint64
	Timestamp time.Time
	Width     int
	Height    int
	Format    FrameFormat
	Data      []byte
}

// AudioOptions configures audio capture.
type AudioOptions struct {
	// SampleRate in Hz. Default: 48000.
	SampleRate int

	// Channels count. Default: 2.
	Channels int

	// NoiseSuppression and EchoCancellation toggle driver-side
	// processing.
	NoiseSuppression bool
	EchoCancellation bool
}

// DefaultAudioOptions returns the stereo 48 kHz default with
// processing enabled.
func DefaultAudioOptions() AudioOptions {
	return AudioOptions{
		SampleRate:       48000,
		Channels:         2,
		NoiseSuppression: true,
		EchoCancellation: true,
	}
}

// Options configures a capture run.
type Options struct {
	// Width, Height bound the captured resolution.
	Width  int
	Height int

	// FrameRate in frames per second. Manually set values are clamped
	// to [MinFrameRate, MaxFrameRate].
	FrameRate int

	// BitrateKbps is the encoder target.
	BitrateKbps int

	// Codec requested from the driver.
	Codec VideoCodec

	// HardwareAcceleration asks the driver for a hardware encoder.
	HardwareAcceleration bool

	// Preset names the quality preset these options came from.
	Preset Preset
}

// DefaultOptions returns the balanced-preset capture configuration.
func DefaultOptions() Options {
	return PresetBalanced.Options()
}
