package transcode

import (
	"context"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// FrameSize is the number of samples per MPEG-1 Layer III frame.
const FrameSize = 1152

// FrameEncoder is a block-streaming mono encoder. Each call returns the bytes
// emitted so far; an encoder may buffer and emit nothing until Flush.
type FrameEncoder interface {
	EncodeFrame(samples []int16) ([]byte, error)
	Flush() ([]byte, error)
	// Close aborts the encoder and releases its resources. Safe after Flush.
	Close() error
}

// EncoderFactory starts an encoder for mono input at sampleRate.
type EncoderFactory func(ctx context.Context, sampleRate, bitrateKbps int) (FrameEncoder, error)

// mp3SampleRates are the rates MPEG audio can carry.
var mp3SampleRates = []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000}

// MP3SampleRate returns the MPEG sample rate closest to rate.
func MP3SampleRate(rate int) int {
	best := mp3SampleRates[0]
	for _, r := range mp3SampleRates {
		if abs(r-rate) < abs(best-rate) {
			best = r
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FFmpegEncoder encodes with libmp3lame in an ffmpeg process: frames are written
// to its stdin and the MP3 goes to a temporary file, so ffmpeg can write the
// Info tag that records encoder delay and padding.
type FFmpegEncoder struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     string
	stderr  *strings.Builder
	frame   []byte
	mu      sync.Mutex
	done    bool
	waitErr error
}

// NewFFmpegEncoderFactory returns an EncoderFactory running the ffmpeg at path.
func NewFFmpegEncoderFactory(path string) EncoderFactory {
	return func(ctx context.Context, sampleRate, bitrateKbps int) (FrameEncoder, error) {
		return NewFFmpegEncoder(ctx, path, sampleRate, bitrateKbps)
	}
}

// FFmpegEncoderArgs is the ffmpeg command line encoding raw s16le mono to CBR MP3.
func FFmpegEncoderArgs(sampleRate, bitrateKbps int, output string) []string {
	rate := strconv.Itoa(sampleRate)
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "s16le", "-ar", rate, "-ac", "1", "-i", "pipe:0",
		"-c:a", "libmp3lame", "-b:a", strconv.Itoa(bitrateKbps) + "k", "-ac", "1",
		"-ar", strconv.Itoa(MP3SampleRate(sampleRate)),
		"-map_metadata", "-1", "-id3v2_version", "0", "-write_xing", "1",
		"-f", "mp3", "-y", output,
	}
}

func NewFFmpegEncoder(ctx context.Context, path string, sampleRate, bitrateKbps int) (*FFmpegEncoder, error) {
	bin, err := exec.LookPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg not found")
	}
	f, err := ioutil.TempFile("", "lingolab-*.mp3")
	if err != nil {
		return nil, errors.Wrap(err, "creating encoder output")
	}
	out := f.Name()
	_ = f.Close()

	cmd := exec.CommandContext(ctx, bin, FFmpegEncoderArgs(sampleRate, bitrateKbps, out)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = os.Remove(out)
		return nil, errors.Wrap(err, "encoder stdin")
	}
	stderr := new(strings.Builder)
	cmd.Stderr = stderr
	if err = cmd.Start(); err != nil {
		_ = os.Remove(out)
		return nil, errors.Wrap(err, "starting encoder")
	}
	return &FFmpegEncoder{
		cmd:    cmd,
		stdin:  stdin,
		out:    out,
		stderr: stderr,
		frame:  make([]byte, FrameSize*2),
	}, nil
}

func (e *FFmpegEncoder) EncodeFrame(samples []int16) ([]byte, error) {
	if len(samples) > FrameSize {
		return nil, errors.Errorf("frame of %d samples exceeds %d", len(samples), FrameSize)
	}
	buf := e.frame[:len(samples)*2]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := e.stdin.Write(buf); err != nil {
		_ = e.wait()
		return nil, errors.Wrapf(err, "writing frame: %s", strings.TrimSpace(e.stderr.String()))
	}
	return nil, nil
}

func (e *FFmpegEncoder) wait() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		e.done = true
		_ = e.stdin.Close()
		e.waitErr = e.cmd.Wait()
	}
	return e.waitErr
}

// Flush ends the input and returns the whole encoded stream.
func (e *FFmpegEncoder) Flush() ([]byte, error) {
	defer func() { _ = os.Remove(e.out) }()
	if err := e.wait(); err != nil {
		return nil, errors.Wrapf(err, "encoder: %s", strings.TrimSpace(e.stderr.String()))
	}
	data, err := ioutil.ReadFile(e.out)
	if err != nil {
		return nil, errors.Wrap(err, "reading encoder output")
	}
	return data, nil
}

func (e *FFmpegEncoder) Close() error {
	e.mu.Lock()
	if !e.done && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	e.mu.Unlock()
	_ = e.wait()
	if err := os.Remove(e.out); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
