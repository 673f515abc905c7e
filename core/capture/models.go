package capture

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no audio input device available")
	ErrEmptyCapture      = errors.New("nothing was captured")
	ErrAlreadyRecording  = errors.New("a capture is already in progress")
	ErrClosed            = errors.New("capture session closed")
	ErrOutOfOrder        = errors.New("chunks are out of order")
)

type State int

const (
	StateIdle State = iota
	StateArmed
	StateRecording
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Constraints are the processing options requested from the input device.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
	Channels         int
}

// Chunk is one fragment of the captured container, in arrival order.
type Chunk struct {
	Seq  int
	Data []byte
	At   time.Time
}

// Recording is the immutable result of a finalized capture.
type Recording struct {
	SessionID   string
	Generation  uint64
	Data        []byte
	MimeType    string
	StartedAt   time.Time
	Duration    time.Duration
	ChunkCount  int
	AutoStopped bool
}

func (r Recording) Size() int { return len(r.Data) }
