package capture

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const wavMimeType = "audio/wav"

// ToneDevice is a synthetic input that streams a sine wave as float32 WAV.
// It is used for dry runs and tests.
type ToneDevice struct {
	Frequency float64       // Hz, defaults to 440
	Amplitude float64       // 0..1, defaults to 0.5
	Length    time.Duration // 0 streams until the stream is closed
	Interval  time.Duration // pacing between chunks, 0 streams as fast as possible

	mu   sync.Mutex
	busy bool
}

var _ Device = (*ToneDevice)(nil)

func (d *ToneDevice) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return nil, errors.Wrap(ErrDeviceUnavailable, "tone device busy")
	}
	d.busy = true

	rate := constraints.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	channels := constraints.Channels
	if channels <= 0 {
		channels = 1
	}
	freq, amp := d.Frequency, d.Amplitude
	if freq == 0 {
		freq = 440
	}
	if amp == 0 {
		amp = 0.5
	}
	total := -1
	if d.Length > 0 {
		total = int(d.Length.Seconds() * float64(rate))
	}
	interval := d.Interval
	perChunk := rate / 10
	if interval > 0 {
		perChunk = int(interval.Seconds() * float64(rate))
		if perChunk < 1 {
			perChunk = 1
		}
	}

	return &toneStream{
		device:   d,
		rate:     rate,
		channels: channels,
		freq:     freq,
		amp:      amp,
		total:    total,
		perChunk: perChunk,
		interval: interval,
		pending:  streamingWAVHeader(rate, channels),
		closed:   make(chan struct{}),
	}, nil
}

func (d *ToneDevice) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
}

type toneStream struct {
	device   *ToneDevice
	rate     int
	channels int
	freq     float64
	amp      float64
	total    int // samples per channel, -1 for unlimited
	perChunk int
	interval time.Duration

	pos       int
	pending   []byte
	nextAt    time.Time
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *toneStream) MimeType() string { return wavMimeType }

func (s *toneStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		if err := s.generate(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *toneStream) generate() error {
	select {
	case <-s.closed:
		return io.EOF
	default:
	}
	if s.total >= 0 && s.pos >= s.total {
		return io.EOF
	}

	if s.interval > 0 {
		if s.nextAt.IsZero() {
			s.nextAt = time.Now()
		}
		s.nextAt = s.nextAt.Add(s.interval)
		timer := time.NewTimer(time.Until(s.nextAt))
		select {
		case <-timer.C:
		case <-s.closed:
			timer.Stop()
			return io.EOF
		}
	}

	n := s.perChunk
	if s.total >= 0 && s.pos+n > s.total {
		n = s.total - s.pos
	}
	buf := make([]byte, n*s.channels*4)
	for i := 0; i < n; i++ {
		v := float32(s.amp * math.Sin(2*math.Pi*s.freq*float64(s.pos+i)/float64(s.rate)))
		for ch := 0; ch < s.channels; ch++ {
			binary.LittleEndian.PutUint32(buf[(i*s.channels+ch)*4:], math.Float32bits(v))
		}
	}
	s.pos += n
	s.pending = buf
	return nil
}

func (s *toneStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.device.release()
	})
	return nil
}

// streamingWAVHeader is a float32 WAV header with unknown sizes, as written to a pipe.
func streamingWAVHeader(rate, channels int) []byte {
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], 0xFFFFFFFF)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(h[22:], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:], uint32(rate))
	binary.LittleEndian.PutUint32(h[28:], uint32(rate*channels*4))
	binary.LittleEndian.PutUint16(h[32:], uint16(channels*4))
	binary.LittleEndian.PutUint16(h[34:], 32)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], 0xFFFFFFFF)
	return h
}
