package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/core/capture"
	"github.com/heluDuyne/lingolab/core/submission"
	"github.com/heluDuyne/lingolab/core/transcode"
)

type fakeRecorder struct {
	starts, stops int
	startErr      error
	rec           capture.Recording
}

func (r *fakeRecorder) Start(context.Context) error { r.starts++; return r.startErr }
func (r *fakeRecorder) Stop()                       { r.stops++ }
func (r *fakeRecorder) Wait(context.Context) (capture.Recording, error) {
	return r.rec, nil
}
func (r *fakeRecorder) Elapsed() time.Duration     { return 3 * time.Second }
func (r *fakeRecorder) Remaining() time.Duration   { return 117 * time.Second }
func (r *fakeRecorder) MaxDuration() time.Duration { return 2 * time.Minute }

type fakeEncoder struct{ err error }

func (e *fakeEncoder) Transcode(_ context.Context, src []byte) (transcode.Artifact, error) {
	if e.err != nil {
		return transcode.Artifact{}, e.err
	}
	return transcode.Artifact{Data: src, MimeType: transcode.MimeTypeMP3, SizeBytes: len(src), Bitrate: 128, Channels: 1, Duration: 3 * time.Second}, nil
}

type fakeSubmitter struct {
	reqs []submission.Request
	err  error
}

func (s *fakeSubmitter) Submit(_ context.Context, req submission.Request) (submission.Result, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return submission.Result{}, s.err
	}
	return submission.Result{Attempt: attempt.Attempt{ID: req.AttemptID, Status: attempt.StatusSubmitted, Content: "http://localhost/media/a1.mp3"}}, nil
}

type fakeStatus struct {
	view attempt.StatusView
	err  error
}

func (s *fakeStatus) GetStatus(context.Context, string) (attempt.StatusView, error) {
	return s.view, s.err
}

type fakePlayer struct {
	replaced, plays, stops, releases int
	replaceErr                       error
}

func (p *fakePlayer) Replace(transcode.Artifact) (string, error) {
	if p.replaceErr != nil {
		return "", p.replaceErr
	}
	p.replaced++
	return "/tmp/x.mp3", nil
}
func (p *fakePlayer) Play(context.Context) error { p.plays++; return nil }
func (p *fakePlayer) Stop()                      { p.stops++ }
func (p *fakePlayer) Release()                   { p.releases++ }

type fixture struct {
	rec    *fakeRecorder
	enc    *fakeEncoder
	sub    *fakeSubmitter
	status *fakeStatus
	player *fakePlayer
}

func newModel() (Model, *fixture) {
	f := &fixture{
		rec:    &fakeRecorder{rec: capture.Recording{Generation: 1, Data: []byte("RIFF"), Duration: 3 * time.Second}},
		enc:    &fakeEncoder{},
		sub:    &fakeSubmitter{},
		status: &fakeStatus{view: attempt.StatusView{AttemptID: "a1", Status: attempt.StatusPending}},
		player: &fakePlayer{},
	}
	m := New(Deps{
		AttemptID: "a1",
		Prompt:    "Describe your favourite place.",
		Recorder:  f.rec,
		Encoder:   f.enc,
		Submitter: f.sub,
		Status:    f.status,
		Player:    f.player,
	})
	return m, f
}

func key(k string) tea.KeyMsg {
	switch k {
	case KeyCtrlC:
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case KeyEnter:
		return tea.KeyMsg{Type: tea.KeyEnter}
	case KeySpace:
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	model, ok := updated.(Model)
	require.True(t, ok)
	return model, cmd
}

func run(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	return cmd()
}

// ready loads the status and returns a model waiting for a recording.
func ready(t *testing.T) (Model, *fixture) {
	m, f := newModel()
	m, _ = update(t, m, run(m.statusCmd()))
	require.Equal(t, PhaseReady, m.Phase())
	return m, f
}

// reviewed records and encodes one answer.
func reviewed(t *testing.T) (Model, *fixture) {
	m, f := ready(t)
	m, cmd := update(t, m, key(KeyRecord))
	m, _ = update(t, m, run(cmd))
	require.Equal(t, PhaseRecording, m.Phase())
	m, cmd = update(t, m, RecordedMsg{Gen: m.gen, Recording: f.rec.rec})
	require.Equal(t, PhaseEncoding, m.Phase())
	m, _ = update(t, m, run(cmd))
	require.Equal(t, PhaseReview, m.Phase())
	return m, f
}

func TestNew(t *testing.T) {
	m, _ := newModel()
	assert.Equal(t, PhaseLoading, m.Phase())
	assert.NotNil(t, m.Init())
	assert.Contains(t, m.View(), "Loading attempt")
}

func TestStatus(t *testing.T) {
	t.Run("read-only attempt", func(t *testing.T) {
		m, f := newModel()
		f.status.view = attempt.StatusView{AttemptID: "a1", Status: attempt.StatusScored, Content: "http://localhost/media/a1.mp3", ReadOnly: true}
		m, _ = update(t, m, run(m.statusCmd()))
		assert.Equal(t, PhaseSubmitted, m.Phase())

		m, cmd := update(t, m, key(KeyRecord))
		assert.Nil(t, cmd)
		assert.Equal(t, PhaseSubmitted, m.Phase())
		assert.Zero(t, f.rec.starts)
		assert.Contains(t, m.View(), "read-only")
	})

	t.Run("unavailable", func(t *testing.T) {
		m, f := newModel()
		f.status.err = errors.Wrap(attempt.ErrNotFound, "getting attempt")
		m, _ = update(t, m, run(m.statusCmd()))
		assert.Equal(t, PhaseUnavailable, m.Phase())
		assert.Contains(t, m.View(), "does not exist")
	})
}

func TestRecordReviewSubmit(t *testing.T) {
	m, f := reviewed(t)
	assert.Equal(t, 1, f.rec.starts)
	assert.Equal(t, 1, f.player.replaced)
	require.NotNil(t, m.artifact)
	assert.Contains(t, m.View(), "128 kbps mono")

	// preview
	m, cmd := update(t, m, key(KeyPlay))
	assert.True(t, m.playing)
	m, _ = update(t, m, run(cmd))
	assert.False(t, m.playing)
	assert.Equal(t, 1, f.player.plays)

	// confirmation then submit
	m, cmd = update(t, m, key(KeySubmit))
	assert.Nil(t, cmd)
	assert.Equal(t, PhaseConfirm, m.Phase())
	m, cmd = update(t, m, key(KeyNo))
	assert.Nil(t, cmd)
	assert.Equal(t, PhaseReview, m.Phase())

	m, _ = update(t, m, key(KeySubmit))
	m, cmd = update(t, m, key(KeyYes))
	assert.Equal(t, PhaseSubmitting, m.Phase())
	m, _ = update(t, m, run(cmd))
	assert.Equal(t, PhaseSubmitted, m.Phase())
	assert.Equal(t, attempt.StatusSubmitted, m.status)
	assert.Equal(t, 2, f.player.releases) // on record and after submit

	require.Len(t, f.sub.reqs, 1)
	req := f.sub.reqs[0]
	assert.Equal(t, "a1", req.AttemptID)
	assert.NotNil(t, req.Recording)
	assert.NotNil(t, req.Artifact)
	assert.Empty(t, req.UploadedURL)
}

func TestStopRecording(t *testing.T) {
	m, f := ready(t)
	m, cmd := update(t, m, key(KeySpace))
	assert.Equal(t, PhaseStarting, m.Phase())
	m, _ = update(t, m, run(cmd))

	m, cmd = update(t, m, key(KeyRecord))
	assert.True(t, m.stopping)
	run(cmd)
	assert.Equal(t, 1, f.rec.stops)

	// a second press while stopping does nothing
	_, cmd = update(t, m, key(KeyRecord))
	assert.Nil(t, cmd)
}

func TestTick(t *testing.T) {
	m, _ := ready(t)
	m, cmd := update(t, m, key(KeyRecord))
	m, _ = update(t, m, run(cmd))

	m, cmd = update(t, m, TickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Equal(t, 3*time.Second, m.elapsed)
	assert.Equal(t, 117*time.Second, m.remaining)
	assert.Contains(t, m.View(), "00:03 / 02:00")

	// ticking ends with the recording
	m, _ = update(t, m, RecordedMsg{Gen: m.gen, Recording: capture.Recording{Data: []byte("RIFF"), AutoStopped: true, Duration: 2 * time.Minute}})
	_, cmd = update(t, m, TickMsg(time.Now()))
	assert.Nil(t, cmd)
	assert.Contains(t, m.notice, "02:00 limit")
}

func TestStaleResultsAreDropped(t *testing.T) {
	m, f := reviewed(t)
	oldGen := m.gen

	// re-record: results of the previous generation no longer apply
	m, _ = update(t, m, key(KeyRecord))
	assert.Equal(t, PhaseStarting, m.Phase())
	assert.Nil(t, m.artifact)

	m, _ = update(t, m, EncodedMsg{Gen: oldGen, Artifact: transcode.Artifact{SizeBytes: 10}})
	assert.Equal(t, PhaseStarting, m.Phase())
	assert.Nil(t, m.artifact)

	m, _ = update(t, m, SubmittedMsg{Gen: oldGen, Result: submission.Result{Attempt: attempt.Attempt{Status: attempt.StatusSubmitted}}})
	assert.Equal(t, PhaseStarting, m.Phase())

	m, _ = update(t, m, RecordedMsg{Gen: oldGen, Err: capture.ErrEmptyCapture})
	assert.Equal(t, PhaseStarting, m.Phase())
	assert.Empty(t, m.errText)
	assert.Equal(t, 2, f.player.releases)
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		phase Phase
		text  string
	}{
		{"permission", capture.ErrPermissionDenied, PhaseReady, "denied"},
		{"no device", errors.Wrap(capture.ErrDeviceUnavailable, "ffmpeg"), PhaseReady, "No microphone"},
		{"read-only", errors.Wrap(attempt.ErrReadOnly, "capture rejected"), PhaseSubmitted, "already submitted"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, f := ready(t)
			f.rec.startErr = tc.err
			m, cmd := update(t, m, key(KeyRecord))
			m, _ = update(t, m, run(cmd))
			assert.Equal(t, tc.phase, m.Phase())
			assert.Contains(t, m.errText, tc.text)
		})
	}
}

func TestEncodeFailure(t *testing.T) {
	m, f := ready(t)
	f.enc.err = &transcode.Error{Stage: "decode", Err: transcode.ErrNotWAV}
	m, cmd := update(t, m, key(KeyRecord))
	m, _ = update(t, m, run(cmd))
	m, cmd = update(t, m, RecordedMsg{Gen: m.gen, Recording: f.rec.rec})
	m, _ = update(t, m, run(cmd))
	assert.Equal(t, PhaseReady, m.Phase())
	assert.Contains(t, m.errText, "could not be encoded")
	assert.Zero(t, f.player.replaced)
	assert.Nil(t, m.recording)

	// submitting now sends no audio
	m, cmd = update(t, m, key(KeySubmit))
	assert.Equal(t, PhaseSubmitting, m.Phase())
	run(cmd)
	require.Len(t, f.sub.reqs, 1)
	assert.Nil(t, f.sub.reqs[0].Recording)
	assert.Nil(t, f.sub.reqs[0].Artifact)
}

func TestPreviewFileFailure(t *testing.T) {
	m, f := ready(t)
	f.player.replaceErr = errors.New("no space left on device")
	m, cmd := update(t, m, key(KeyRecord))
	m, _ = update(t, m, run(cmd))
	m, cmd = update(t, m, RecordedMsg{Gen: m.gen, Recording: f.rec.rec})
	m, _ = update(t, m, run(cmd))
	assert.Equal(t, PhaseReady, m.Phase())
	assert.Nil(t, m.recording)
	assert.Nil(t, m.artifact)
	assert.NotEmpty(t, m.errText)

	// the confirmation step is never skipped for an unpreviewed recording
	m, cmd = update(t, m, key(KeySubmit))
	run(cmd)
	require.Len(t, f.sub.reqs, 1)
	assert.Nil(t, f.sub.reqs[0].Recording)
}

func TestQuitWhileEncoding(t *testing.T) {
	m, f := ready(t)
	m, cmd := update(t, m, key(KeyRecord))
	m, _ = update(t, m, run(cmd))
	m, encode := update(t, m, RecordedMsg{Gen: m.gen, Recording: f.rec.rec})
	require.Equal(t, PhaseEncoding, m.Phase())

	m, _ = update(t, m, key(KeyQuit))
	m, _ = update(t, m, run(encode))
	assert.Zero(t, f.player.replaced)
}

func TestSubmitFailureKeepsUpload(t *testing.T) {
	m, f := reviewed(t)
	f.sub.err = &submission.Error{Stage: submission.StageSubmit, UploadedURL: "http://localhost/media/a1.mp3", Err: &attempt.SubmitError{AttemptID: "a1", Err: errors.New("reset")}}

	m, _ = update(t, m, key(KeySubmit))
	m, cmd := update(t, m, key(KeyEnter))
	m, _ = update(t, m, run(cmd))
	assert.Equal(t, PhaseReview, m.Phase())
	assert.Contains(t, m.errText, "your recording is kept")

	// the retry reuses the uploaded artifact
	f.sub.err = nil
	m, _ = update(t, m, key(KeySubmit))
	m, cmd = update(t, m, key(KeyYes))
	m, _ = update(t, m, run(cmd))
	assert.Equal(t, PhaseSubmitted, m.Phase())

	require.Len(t, f.sub.reqs, 2)
	retry := f.sub.reqs[1]
	assert.Equal(t, "http://localhost/media/a1.mp3", retry.UploadedURL)
	assert.Nil(t, retry.Recording)
	assert.Nil(t, retry.Artifact)
}

func TestSubmitNothing(t *testing.T) {
	m, f := ready(t)
	f.sub.err = &submission.Error{Stage: submission.StageCheck, Err: submission.ErrNothingToSubmit}
	m, cmd := update(t, m, key(KeySubmit))
	m, _ = update(t, m, run(cmd))
	assert.Equal(t, PhaseReady, m.Phase())
	assert.Contains(t, m.errText, "Nothing to submit")
}

func TestProgress(t *testing.T) {
	m, _ := ready(t)
	progress := make(chan submission.Stage, 1)
	m.deps.Progress = progress
	progress <- submission.StageUpload

	m, cmd := update(t, m, run(m.progressCmd()))
	assert.Equal(t, submission.StageUpload, m.stage)
	assert.NotNil(t, cmd)
}

func TestQuit(t *testing.T) {
	m, f := ready(t)
	m, cmd := update(t, m, key(KeyRecord))
	m, _ = update(t, m, run(cmd))

	m, cmd = update(t, m, key(KeyCtrlC))
	assert.Equal(t, tea.QuitMsg{}, run(cmd))
	assert.Equal(t, 1, f.rec.stops)
	assert.Equal(t, 2, f.player.releases)
	assert.Error(t, m.ctx.Err())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", formatDuration(-time.Second))
	assert.Equal(t, "01:05", formatDuration(65*time.Second))
	assert.Equal(t, "02:00", formatDuration(119600*time.Millisecond))
}
