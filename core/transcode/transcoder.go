package transcode

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
)

const (
	MimeTypeMP3    = "audio/mpeg"
	DefaultBitrate = 128 // kbps
)

var ErrTranscode = errors.New("transcode failed")

// Error wraps any failure of the pipeline. No partial output is ever returned with it.
type Error struct {
	Stage string // decode | encode | verify
	Err   error
}

func (err *Error) Error() string {
	return "transcode " + err.Stage + ": " + err.Err.Error()
}

func (err *Error) Unwrap() error { return err.Err }

func (err *Error) Is(target error) bool { return target == ErrTranscode }

// Artifact is the immutable result of a transcode.
type Artifact struct {
	Data             []byte
	MimeType         string
	SizeBytes        int
	SourceSampleRate int
	SampleRate       int
	Channels         int
	Bitrate          int // kbps
	Duration         time.Duration
}

type Transcoder struct {
	newEncoder EncoderFactory
	bitrate    int
	downmix    DownmixPolicy
	verify     bool
	logger     core.Logger
}

func NewTranscoder(newEncoder EncoderFactory, conf core.EncodingConfig, logger core.Logger) (*Transcoder, error) {
	if conf.Bitrate == 0 {
		conf.Bitrate = DefaultBitrate
	}
	err := vala.BeginValidation().Validate(
		core.IsNotNil(newEncoder, "newEncoder"),
		core.IsNotNil(logger, "logger"),
		vala.GreaterThan(conf.Bitrate, 0, "Bitrate"),
	).Check()
	if err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	policy, err := ParseDownmixPolicy(conf.Downmix)
	if err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	return &Transcoder{
		newEncoder: newEncoder,
		bitrate:    conf.Bitrate,
		downmix:    policy,
		verify:     conf.Verify,
		logger:     logger,
	}, nil
}

type result struct {
	artifact Artifact
	err      error
}

// Transcode converts a WAV container to a mono CBR MP3 artifact.
// The work runs in its own goroutine; cancelling ctx aborts it.
func (t *Transcoder) Transcode(ctx context.Context, src []byte) (Artifact, error) {
	res := make(chan result, 1)
	go func() {
		art, err := t.run(ctx, src)
		res <- result{art, err}
	}()

	select {
	case r := <-res:
		return r.artifact, r.err
	case <-ctx.Done():
		return Artifact{}, &Error{Stage: "encode", Err: ctx.Err()}
	}
}

func (t *Transcoder) run(ctx context.Context, src []byte) (Artifact, error) {
	start := time.Now()

	pcm, err := DecodeWAV(src)
	if err != nil {
		return Artifact{}, &Error{Stage: "decode", Err: err}
	}
	samples := QuantizeAll(Downmix(pcm, t.downmix))

	data, err := t.encode(ctx, samples, pcm.SampleRate)
	if err != nil {
		return Artifact{}, &Error{Stage: "encode", Err: err}
	}

	art := Artifact{
		Data:             data,
		MimeType:         MimeTypeMP3,
		SizeBytes:        len(data),
		SourceSampleRate: pcm.SampleRate,
		SampleRate:       MP3SampleRate(pcm.SampleRate),
		Channels:         1,
		Bitrate:          t.bitrate,
		Duration:         time.Duration(len(samples)) * time.Second / time.Duration(pcm.SampleRate),
	}
	if t.verify {
		if err = Verify(art); err != nil {
			return Artifact{}, &Error{Stage: "verify", Err: err}
		}
	}

	t.logger.Debug("transcoded", map[string]interface{}{
		"source_channels": len(pcm.Channels),
		"source_rate":     pcm.SampleRate,
		"samples":         len(samples),
		"bytes":           art.SizeBytes,
		"took":            time.Since(start).String(),
	})
	return art, nil
}

// encode feeds samples in FrameSize blocks and concatenates every emitted segment.
func (t *Transcoder) encode(ctx context.Context, samples []int16, sampleRate int) ([]byte, error) {
	enc, err := t.newEncoder(ctx, sampleRate, t.bitrate)
	if err != nil {
		return nil, errors.Wrap(err, "starting encoder")
	}
	defer func() { _ = enc.Close() }()

	segments := make([][]byte, 0, len(samples)/FrameSize+2)
	for off := 0; off < len(samples); off += FrameSize {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		end := off + FrameSize
		if end > len(samples) {
			end = len(samples)
		}
		seg, err := enc.EncodeFrame(samples[off:end])
		if err != nil {
			return nil, err
		}
		if len(seg) > 0 {
			segments = append(segments, seg)
		}
	}

	seg, err := enc.Flush()
	if err != nil {
		return nil, errors.Wrap(err, "flushing encoder")
	}
	segments = append(segments, seg)

	size := 0
	for _, s := range segments {
		size += len(s)
	}
	if size == 0 {
		return nil, errors.New("encoder produced no output")
	}
	data := make([]byte, 0, size)
	for _, s := range segments {
		data = append(data, s...)
	}
	return data, nil
}

// Verify checks an artifact decodes as mono MP3 at the expected rate and length.
func Verify(art Artifact) error {
	info, err := Inspect(art.Data)
	if err != nil {
		return err
	}
	if !info.Mono {
		return errors.New("artifact is not mono")
	}
	if info.SampleRate != art.SampleRate {
		return errors.Errorf("artifact sample rate %d, want %d", info.SampleRate, art.SampleRate)
	}
	tolerance := time.Duration(FrameSize) * time.Second / time.Duration(info.SampleRate)
	if diff := info.Duration - art.Duration; diff > tolerance || diff < -tolerance {
		return errors.Errorf("artifact lasts %s, want %s", info.Duration, art.Duration)
	}
	return nil
}
