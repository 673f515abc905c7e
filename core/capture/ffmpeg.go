package capture

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
)

var stopGracePeriod = 3 * time.Second

// FFmpegDevice captures the platform's microphone with an ffmpeg process writing
// float32 WAV to stdout.
type FFmpegDevice struct {
	Path        string
	InputFormat string // avfoundation | pulse | alsa | dshow
	InputDevice string
	logger      core.Logger

	mu   sync.Mutex
	busy bool
}

var _ Device = (*FFmpegDevice)(nil)

func NewFFmpegDevice(conf core.CaptureConfig, logger core.Logger) *FFmpegDevice {
	return &FFmpegDevice{
		Path:        conf.FFmpegPath,
		InputFormat: conf.InputFormat,
		InputDevice: conf.InputDevice,
		logger:      logger,
	}
}

func (d *FFmpegDevice) input() (string, error) {
	switch d.InputFormat {
	case "avfoundation":
		if d.InputDevice == "" {
			return ":default", nil
		}
		return ":" + d.InputDevice, nil
	case "pulse", "alsa":
		if d.InputDevice == "" {
			return "default", nil
		}
		return d.InputDevice, nil
	case "dshow":
		if d.InputDevice == "" {
			return "", errors.Wrap(ErrDeviceUnavailable, "dshow needs capture.inputDevice")
		}
		return "audio=" + d.InputDevice, nil
	default:
		return "", errors.Wrapf(ErrDeviceUnavailable, "unsupported input format %q", d.InputFormat)
	}
}

// Filters maps constraints onto an ffmpeg audio filter chain.
// Echo cancellation has no ffmpeg filter and is left to the platform input.
func Filters(c Constraints) string {
	filters := make([]string, 0, 3)
	if c.NoiseSuppression {
		filters = append(filters, "highpass=f=80", "afftdn")
	}
	if c.AutoGainControl {
		filters = append(filters, "speechnorm")
	}
	return strings.Join(filters, ",")
}

// Args builds the ffmpeg command line for a capture.
func (d *FFmpegDevice) Args(c Constraints) ([]string, error) {
	input, err := d.input()
	if err != nil {
		return nil, err
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats", "-f", d.InputFormat, "-i", input}
	if filters := Filters(c); filters != "" {
		args = append(args, "-af", filters)
	}
	if c.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(c.Channels))
	}
	if c.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(c.SampleRate))
	}
	return append(args, "-c:a", "pcm_f32le", "-f", "wav", "pipe:1"), nil
}

func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	path, err := exec.LookPath(d.Path)
	if err != nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, "ffmpeg not found")
	}
	args, err := d.Args(c)
	if err != nil {
		return nil, err
	}
	if c.EchoCancellation {
		d.logger.Debug("echo cancellation is delegated to the " + d.InputFormat + " input")
	}

	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, errors.Wrap(ErrDeviceUnavailable, "input device busy")
	}
	d.busy = true
	d.mu.Unlock()

	s, err := startFFmpeg(ctx, path, args, d.release)
	if err != nil {
		d.release()
		return nil, err
	}
	return s, nil
}

func (d *FFmpegDevice) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
}

type ffmpegStream struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	stderr  *tailBuffer
	release func()

	mu        sync.Mutex
	stopping  bool
	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
	exited    chan struct{}
}

func startFFmpeg(ctx context.Context, path string, args []string, release func()) (*ffmpegStream, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdout")
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err = cmd.Start(); err != nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, err.Error())
	}
	s := &ffmpegStream{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReaderSize(stdout, 64*1024),
		stderr:  stderr,
		release: release,
		exited:  make(chan struct{}),
	}

	// the device is granted once ffmpeg writes its first bytes
	granted := make(chan error, 1)
	go func() {
		_, err := s.stdout.Peek(1)
		granted <- err
	}()
	select {
	case err = <-granted:
	case <-ctx.Done():
		s.kill()
		go func() {
			<-granted
			_ = s.wait()
		}()
		return nil, ctx.Err()
	}
	if err != nil {
		s.kill()
		return nil, classifyFFmpegError(s.wait(), stderr.String())
	}
	return s, nil
}

func (s *ffmpegStream) MimeType() string { return wavMimeType }

func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == io.EOF {
		werr := s.wait()
		s.mu.Lock()
		stopping := s.stopping
		s.mu.Unlock()
		if werr != nil && !stopping {
			return n, classifyFFmpegError(werr, s.stderr.String())
		}
	}
	return n, err
}

// wait reaps the process. Only call it once stdout is drained.
func (s *ffmpegStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
		s.release()
	})
	return s.waitErr
}

func (s *ffmpegStream) kill() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Close asks ffmpeg to finish ('q' on stdin) so buffered audio is still written,
// and kills it if it does not exit in time.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		_, _ = io.WriteString(s.stdin, "q")
		_ = s.stdin.Close()
		go func() {
			timer := time.NewTimer(stopGracePeriod)
			defer timer.Stop()
			select {
			case <-s.exited:
			case <-timer.C:
				s.kill()
			}
		}()
	})
	return nil
}

func classifyFFmpegError(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not permitted"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "access denied"):
		return errors.Wrap(ErrPermissionDenied, strings.TrimSpace(stderr))
	case strings.Contains(msg, "no such device"),
		strings.Contains(msg, "no such file"),
		strings.Contains(msg, "device or resource busy"),
		strings.Contains(msg, "could not find"),
		strings.Contains(msg, "input/output error"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "unknown input format"):
		return errors.Wrap(ErrDeviceUnavailable, strings.TrimSpace(stderr))
	}
	if err == nil {
		return errors.Wrap(ErrDeviceUnavailable, "ffmpeg produced no audio")
	}
	return errors.Wrapf(err, "ffmpeg: %s", strings.TrimSpace(stderr))
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
