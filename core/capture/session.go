package capture

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
)

const (
	DefaultMaxDuration = 120 * time.Second
	DefaultReadSize    = 4096
)

// Gate is checked before every Start. A non-nil error rejects the capture.
type Gate func(ctx context.Context) error

type Options struct {
	MaxDuration time.Duration
	ReadSize    int
	Constraints Constraints
	Gate        Gate
}

func OptionsFromConfig(conf core.CaptureConfig) Options {
	return Options{
		MaxDuration: conf.MaxDuration,
		Constraints: Constraints{
			EchoCancellation: conf.EchoCancellation,
			NoiseSuppression: conf.NoiseSuppression,
			AutoGainControl:  conf.AutoGainControl,
			SampleRate:       conf.SampleRate,
			Channels:         conf.Channels,
		},
	}
}

// Session owns one input stream at a time and turns it into Recordings.
// Each Start begins a new generation; callbacks of a generation never fire for another.
type Session struct {
	device Device
	opts   Options
	logger core.Logger

	mu          sync.Mutex
	state       State
	closed      bool
	id          string
	gen         uint64
	stream      Stream
	chunks      []Chunk
	startedAt   time.Time
	stoppedAt   time.Time
	autoStopped bool
	timer       *time.Timer
	done        chan struct{}
	result      Recording
	resultErr   error
	onChunk     func(Chunk)
	onComplete  func(Recording, error)
}

func NewSession(device Device, logger core.Logger, opts Options) (*Session, error) {
	if opts.MaxDuration == 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.ReadSize == 0 {
		opts.ReadSize = DefaultReadSize
	}
	err := vala.BeginValidation().Validate(
		core.IsNotNil(device, "device"),
		core.IsNotNil(logger, "logger"),
		vala.GreaterThan(int(opts.MaxDuration/time.Millisecond), 0, "MaxDuration"),
		vala.GreaterThan(opts.ReadSize, 0, "ReadSize"),
	).Check()
	if err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	return &Session{device: device, opts: opts, logger: logger}, nil
}

// OnChunk registers a callback run, in order, for every non-empty chunk.
func (s *Session) OnChunk(fn func(Chunk)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = fn
}

// OnComplete registers a callback run once per generation when it is finalized.
func (s *Session) OnComplete(fn func(Recording, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) MaxDuration() time.Duration { return s.opts.MaxDuration }

func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed()
}

func (s *Session) elapsed() time.Duration {
	switch {
	case s.startedAt.IsZero():
		return 0
	case s.state == StateRecording:
		return time.Since(s.startedAt)
	default:
		return s.stoppedAt.Sub(s.startedAt)
	}
}

func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rem := s.opts.MaxDuration - s.elapsed(); rem > 0 {
		return rem
	}
	return 0
}

// Start acquires the device and begins recording a new generation.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StateArmed || s.state == StateRecording {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	prev := s.done
	s.mu.Unlock()

	// the previous generation must release the device first
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.opts.Gate != nil {
		if err := s.opts.Gate(ctx); err != nil {
			return errors.Wrap(err, "capture rejected")
		}
	}

	s.mu.Lock()
	if s.state == StateArmed || s.state == StateRecording {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.gen++
	gen := s.gen
	s.id = uuid.New().String()
	sessionID := s.id
	s.state = StateArmed
	s.chunks = nil
	s.startedAt, s.stoppedAt = time.Time{}, time.Time{}
	s.autoStopped = false
	s.result, s.resultErr = Recording{}, nil
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	stream, err := s.device.Open(ctx, s.opts.Constraints)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.resultErr = err
		close(done)
		s.mu.Unlock()
		s.logger.Error("opening input device", err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.state = StateIdle
		close(done)
		s.mu.Unlock()
		_ = stream.Close()
		return ErrClosed
	}
	s.stream = stream
	s.state = StateRecording
	s.startedAt = time.Now()
	s.timer = time.AfterFunc(s.opts.MaxDuration, func() { s.stop(gen, true) })
	s.mu.Unlock()

	s.logger.Debug("capture started", map[string]interface{}{"session_id": sessionID, "generation": gen})
	go s.read(gen, stream)
	return nil
}

// Stop ends the current recording. It is a no-op when not recording.
func (s *Session) Stop() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.stop(gen, false)
}

// stop only acts once per generation, whichever of the timer and the caller comes first.
func (s *Session) stop(gen uint64, auto bool) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.stoppedAt = time.Now()
	s.autoStopped = auto
	s.timer.Stop()
	stream := s.stream
	s.mu.Unlock()

	if auto {
		s.logger.Info("capture auto-stopped", map[string]interface{}{"generation": gen, "max_duration": s.opts.MaxDuration.String()})
	}
	if err := stream.Close(); err != nil {
		s.logger.Warn("closing input stream", err)
	}
}

// read is the only reader of a generation's stream, so chunks stay in arrival order.
func (s *Session) read(gen uint64, stream Stream) {
	buf := make([]byte, s.opts.ReadSize)
	var readErr error
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			s.mu.Lock()
			chunk := Chunk{Seq: len(s.chunks), Data: data, At: time.Now()}
			s.chunks = append(s.chunks, chunk)
			cb := s.onChunk
			s.mu.Unlock()

			if cb != nil {
				cb(chunk)
			}
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
	}
	s.finalize(gen, stream, readErr)
}

func (s *Session) finalize(gen uint64, stream Stream, readErr error) {
	s.mu.Lock()
	stopRequested := s.state == StateStopped
	if s.state == StateRecording {
		// the source ended on its own
		s.state = StateStopped
		s.stoppedAt = time.Now()
		s.timer.Stop()
	}
	s.stream = nil
	chunks := s.chunks
	rec := Recording{
		SessionID:   s.id,
		Generation:  gen,
		MimeType:    stream.MimeType(),
		StartedAt:   s.startedAt,
		Duration:    s.stoppedAt.Sub(s.startedAt),
		ChunkCount:  len(chunks),
		AutoStopped: s.autoStopped,
	}
	s.mu.Unlock()

	// always release the device, even when the source failed
	if err := stream.Close(); err != nil {
		s.logger.Warn("releasing input stream", err)
	}

	var err error
	if readErr != nil && !stopRequested {
		err = errors.Wrap(readErr, "reading input stream")
	} else if rec.Data, err = Concat(chunks); err == nil && !HasAudio(rec.MimeType, rec.Data) {
		err = ErrEmptyCapture
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateFailed
		rec = Recording{}
	}
	s.result, s.resultErr = rec, err
	cb := s.onComplete
	done := s.done
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("capture failed", err, map[string]interface{}{"generation": gen})
	} else {
		s.logger.Debug("capture finalized", map[string]interface{}{"generation": gen, "bytes": len(rec.Data), "chunks": rec.ChunkCount})
	}
	// OnComplete runs before Wait returns, so it must not call Start.
	if cb != nil {
		cb(rec, err)
	}
	close(done)
}

// Wait blocks until the current generation is finalized and returns its result.
func (s *Session) Wait(ctx context.Context) (Recording, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return Recording{}, ErrEmptyCapture
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Recording{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.resultErr
}

// Close stops any recording, waits for the device to be released and rejects further Starts.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	gen := s.gen
	done := s.done
	s.mu.Unlock()

	s.stop(gen, false)
	if done != nil {
		<-done
	}
	return nil
}
