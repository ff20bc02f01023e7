// Package decoder defines the contract between the decode pipeline and the
// platform's hardware video decoder.
//
// The pipeline never talks to decoder hardware directly. It drives a Backend,
// which wraps whatever the platform provides (a callback-driven codec API, a
// poll-driven one, or the simulated backend in sim.go used for tests and soak
// runs). Buffer slots are owned by the backend and lent to the pipeline for a
// single fill-or-drain operation at a time.
package decoder

import (
	"errors"
	"fmt"
	"time"
)

// Codec identifies the compressed bitstream format.
type Codec int

const (
	CodecH264 Codec = iota
	CodecHEVC
	CodecAV1
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	case CodecAV1:
		return "av1"
	default:
		return "unknown"
	}
}

// ParseCodec converts a codec name to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "h264", "avc":
		return CodecH264, nil
	case "hevc", "h265":
		return CodecHEVC, nil
	case "av1":
		return CodecAV1, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", s)
	}
}

// StepDown returns the next more widely supported codec, used by callers that
// retry configuration after a ConfigurationError. H.264 is the floor.
func (c Codec) StepDown() (Codec, bool) {
	switch c {
	case CodecAV1:
		return CodecHEVC, true
	case CodecHEVC:
		return CodecH264, true
	default:
		return CodecH264, false
	}
}

// FrameType distinguishes keyframes from delta frames.
type FrameType uint8

const (
	// FrameTypeP is a delta frame predicted from earlier frames.
	FrameTypeP FrameType = 0

	// FrameTypeI is a keyframe (IDR). Keyframes are routinely 5-10x larger
	// than delta frames and decode proportionally slower.
	FrameTypeI FrameType = 1
)

// String returns "I" or "P".
func (t FrameType) String() string {
	if t == FrameTypeI {
		return "I"
	}
	return "P"
}

// DecodeUnit is one compressed video frame plus metadata, handed to the
// pipeline by the network layer. Ownership transfers to the pipeline on
// submit; the unit is done once its payload has been copied into a hardware
// buffer or the frame has been dropped.
type DecodeUnit struct {
	FrameNumber int
	FrameType   FrameType
	Payload     []byte

	// PTS is the stream presentation timestamp in microseconds.
	PTS int64

	// HostLatency is the host-side processing latency reported by the
	// streaming server, in units of 1/10 millisecond.
	HostLatency uint16
}

// Size returns the payload length in bytes.
func (u *DecodeUnit) Size() int { return len(u.Payload) }

// Slot is a hardware input buffer lent to the pipeline for one fill+push.
type Slot struct {
	Index int

	// Handle is the opaque hardware buffer reference. The pipeline never
	// inspects it; it is passed back verbatim on FillInput/PushInput.
	Handle any
}

// OutputSlot is a decoded hardware output buffer awaiting presentation.
type OutputSlot struct {
	Index int

	// PTS is the presentation timestamp of the decoded frame, microseconds.
	PTS int64
}

// ColorSpace selects the YUV matrix coefficients.
type ColorSpace int

const (
	ColorSpaceBT601 ColorSpace = iota
	ColorSpaceBT709
	ColorSpaceBT2020
)

func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceBT601:
		return "bt601"
	case ColorSpaceBT709:
		return "bt709"
	case ColorSpaceBT2020:
		return "bt2020"
	default:
		return "unknown"
	}
}

// ColorRange selects limited or full quantization range.
type ColorRange int

const (
	ColorRangeLimited ColorRange = iota
	ColorRangeFull
)

func (c ColorRange) String() string {
	if c == ColorRangeFull {
		return "full"
	}
	return "limited"
}

// HDRKind selects the transfer characteristics of the stream.
type HDRKind int

const (
	HDRNone HDRKind = iota
	HDR10
)

func (h HDRKind) String() string {
	if h == HDR10 {
		return "hdr10"
	}
	return "sdr"
}

// HDRMetadata carries HDR10 static metadata forwarded verbatim from the
// stream. Layout follows the 24-byte wire structure the host sends.
type HDRMetadata struct {
	DisplayPrimaries [3][2]uint16
	WhitePoint       [2]uint16
	MaxDisplayLum    uint16
	MinDisplayLum    uint16
	MaxContentLight  uint16
	MaxFrameAvgLight uint16
}

// Format is the decoder configuration applied at create/configure time.
type Format struct {
	Codec       Codec
	Width       int
	Height      int
	FPS         float64
	ColorSpace  ColorSpace
	ColorRange  ColorRange
	HDR         HDRKind
	BufferDepth int
	LowLatency  bool
}

// InputAttrs accompanies payload bytes into a hardware input buffer.
type InputAttrs struct {
	PTS      int64 // microseconds
	Keyframe bool
}

// Capabilities describes what the decoder backend can do.
type Capabilities struct {
	Codecs    []Codec
	MaxWidth  int
	MaxHeight int
	MaxFPS    float64
	SyncMode  bool
	HDR       bool
}

// SupportsCodec reports whether the backend decodes the given codec.
func (c Capabilities) SupportsCodec(codec Codec) bool {
	for _, k := range c.Codecs {
		if k == codec {
			return true
		}
	}
	return false
}

// Surface is the presentation target bound to the decoder. Rendered output
// buffers are composited onto it by the platform.
type Surface interface {
	// ID returns the platform surface identifier.
	ID() uint64

	// SetExpectedFrameRateRange hints the compositor's scheduler when
	// variable refresh rate is active. Backends on platforms without the
	// hint return ErrUnsupported.
	SetExpectedFrameRateRange(min, max, expected float64) error
}

// Sentinel errors shared by all backends.
var (
	// ErrTimeout is returned by DequeueInput/DequeueOutput when no buffer
	// became available within the caller's bound.
	ErrTimeout = errors.New("decoder: dequeue timed out")

	// ErrUnsupported is returned for operations the platform cannot do
	// (sync-mode queries on a callback-only codec, VRR hints, HDR).
	ErrUnsupported = errors.New("decoder: operation unsupported")

	// ErrStopped is returned when the backend is not running.
	ErrStopped = errors.New("decoder: backend stopped")
)

// EventSink receives hardware decoder events in async mode.
//
// Callbacks are invoked from the backend's own threads and must not do heavy
// work: the pipeline's sink implementation only enqueues into a bounded
// channel consumed by a single goroutine.
type EventSink interface {
	// OnInputAvailable reports that an input buffer is free for filling.
	OnInputAvailable(slot Slot)

	// OnOutputAvailable reports a decoded frame ready for presentation.
	OnOutputAvailable(out OutputSlot)

	// OnError reports an asynchronous decoder error.
	OnError(err error)
}

// Backend is the hardware decoder contract assumed by the pipeline.
//
// Lifecycle: Configure -> Prepare -> Start -> (Flush)* -> Stop -> Destroy.
// Either RegisterSink (async) or the Dequeue* pair (sync) is used per
// session, never both.
type Backend interface {
	Configure(f Format) error
	Prepare() error
	Start() error
	Stop() error
	Flush() error
	Destroy() error

	SetSurface(s Surface) error
	ReleaseSurface()
	SetHDRMetadata(meta HDRMetadata) error

	// SupportsSync reports whether the platform supports poll-driven
	// operation. Probed once at pipeline start.
	SupportsSync() bool
	RegisterSink(sink EventSink) error

	DequeueInput(timeout time.Duration) (Slot, error)
	DequeueOutput(timeout time.Duration) (OutputSlot, error)

	FillInput(slot Slot, payload []byte, attrs InputAttrs) error

	// PushInput queues a filled slot for decoding. On error the backend
	// reclaims the slot; the caller must not reuse it.
	PushInput(slot Slot) error

	// RenderOutput presents the decoded buffer immediately and returns it
	// to the decoder. RenderOutputAt presents at an absolute deadline.
	RenderOutput(out OutputSlot) error
	RenderOutputAt(out OutputSlot, at time.Time) error

	// FreeOutput returns the buffer to the decoder without presenting it.
	// Used on render failure so the decoder is never starved of buffers.
	FreeOutput(out OutputSlot) error

	Capabilities() Capabilities
}
