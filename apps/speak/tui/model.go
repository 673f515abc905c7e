package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/core/capture"
	"github.com/heluDuyne/lingolab/core/submission"
	"github.com/heluDuyne/lingolab/core/transcode"
)

const (
	tickInterval = 200 * time.Millisecond
	barWidth     = 30
)

type (
	// Recorder is the capture session driven by the model.
	Recorder interface {
		Start(ctx context.Context) error
		Stop()
		Wait(ctx context.Context) (capture.Recording, error)
		Elapsed() time.Duration
		Remaining() time.Duration
		MaxDuration() time.Duration
	}

	Encoder interface {
		Transcode(ctx context.Context, src []byte) (transcode.Artifact, error)
	}

	Submitter interface {
		Submit(ctx context.Context, req submission.Request) (submission.Result, error)
	}

	StatusSource interface {
		GetStatus(ctx context.Context, id string) (attempt.StatusView, error)
	}

	// Player holds the preview of the latest artifact.
	Player interface {
		Replace(art transcode.Artifact) (string, error)
		Play(ctx context.Context) error
		Stop()
		Release()
	}
)

// Deps are the collaborators of a recording screen.
type Deps struct {
	AttemptID string
	Prompt    string
	Recorder  Recorder
	Encoder   Encoder
	Submitter Submitter
	Status    StatusSource
	Player    Player
	Progress  <-chan submission.Stage // optional
}

// Phase is where the screen stands in the record, review and submit flow.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseUnavailable
	PhaseReady
	PhaseStarting
	PhaseRecording
	PhaseEncoding
	PhaseReview
	PhaseConfirm
	PhaseSubmitting
	PhaseSubmitted
)

// Model is the bubbletea model of the recording screen.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	phase Phase
	gen   uint64 // bumped on every new recording

	status    attempt.Status
	content   string
	recording *capture.Recording
	artifact  *transcode.Artifact
	uploaded  string // uploaded by a failed submission, reused on retry
	stopping  bool
	playing   bool
	stage     submission.Stage

	elapsed   time.Duration
	remaining time.Duration

	errText string
	notice  string
	width   int
}

func New(deps Deps) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		phase:  PhaseLoading,
	}
}

func (m Model) Phase() Phase { return m.phase }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.statusCmd()}
	if m.deps.Progress != nil {
		cmds = append(cmds, m.progressCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) statusCmd() tea.Cmd {
	return func() tea.Msg {
		view, err := m.deps.Status.GetStatus(m.ctx, m.deps.AttemptID)
		return StatusMsg{View: view, Err: err}
	}
}

// progressCmd waits for the next stage; only one is ever pending.
func (m Model) progressCmd() tea.Cmd {
	ch, ctx := m.deps.Progress, m.ctx
	return func() tea.Msg {
		select {
		case stage := <-ch:
			return ProgressMsg{Stage: stage}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) startCmd(gen uint64) tea.Cmd {
	return func() tea.Msg {
		return StartedMsg{Gen: gen, Err: m.deps.Recorder.Start(m.ctx)}
	}
}

func (m Model) stopCmd() tea.Cmd {
	return func() tea.Msg {
		m.deps.Recorder.Stop()
		return nil
	}
}

func (m Model) waitCmd(gen uint64) tea.Cmd {
	return func() tea.Msg {
		rec, err := m.deps.Recorder.Wait(m.ctx)
		return RecordedMsg{Gen: gen, Recording: rec, Err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) encodeCmd(gen uint64, rec capture.Recording) tea.Cmd {
	return func() tea.Msg {
		art, err := m.deps.Encoder.Transcode(m.ctx, rec.Data)
		return EncodedMsg{Gen: gen, Artifact: art, Err: err}
	}
}

func (m Model) playCmd(gen uint64) tea.Cmd {
	return func() tea.Msg {
		return PlayedMsg{Gen: gen, Err: m.deps.Player.Play(m.ctx)}
	}
}

func (m Model) submitCmd(gen uint64, req submission.Request) tea.Cmd {
	return func() tea.Msg {
		res, err := m.deps.Submitter.Submit(m.ctx, req)
		return SubmittedMsg{Gen: gen, Result: res, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StatusMsg:
		if msg.Err != nil {
			m.phase = PhaseUnavailable
			m.errText = describe(msg.Err)
			return m, nil
		}
		m.status = msg.View.Status
		m.content = msg.View.Content
		if msg.View.ReadOnly {
			m.phase = PhaseSubmitted
		} else if m.phase == PhaseLoading {
			m.phase = PhaseReady
		}
		return m, nil

	case StartedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		if msg.Err != nil {
			return m.fail(msg.Err)
		}
		m.phase = PhaseRecording
		m.elapsed, m.remaining = 0, m.deps.Recorder.MaxDuration()
		return m, tea.Batch(m.waitCmd(msg.Gen), tickCmd())

	case TickMsg:
		if m.phase != PhaseRecording {
			return m, nil
		}
		m.elapsed = m.deps.Recorder.Elapsed()
		m.remaining = m.deps.Recorder.Remaining()
		return m, tickCmd()

	case RecordedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.stopping = false
		if msg.Err != nil {
			return m.fail(msg.Err)
		}
		rec := msg.Recording
		m.recording = &rec
		m.elapsed, m.remaining = rec.Duration, 0
		if rec.AutoStopped {
			m.notice = fmt.Sprintf("Recording stopped at the %s limit.", formatDuration(m.deps.Recorder.MaxDuration()))
		}
		m.phase = PhaseEncoding
		return m, m.encodeCmd(msg.Gen, rec)

	case EncodedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		err := msg.Err
		if err == nil && m.ctx.Err() == nil {
			_, err = m.deps.Player.Replace(msg.Artifact)
		}
		if err != nil {
			// an answer that was never previewed cannot be submitted
			m.recording = nil
			m.phase = PhaseReady
			m.errText = describe(err)
			return m, nil
		}
		art := msg.Artifact
		m.artifact = &art
		m.phase = PhaseReview
		return m, nil

	case PlayedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.playing = false
		if msg.Err != nil {
			m.errText = describe(msg.Err)
		}
		return m, nil

	case ProgressMsg:
		m.stage = msg.Stage
		return m, m.progressCmd()

	case SubmittedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		if msg.Err != nil {
			var sErr *submission.Error
			if errors.As(msg.Err, &sErr) && sErr.UploadedURL != "" {
				m.uploaded = sErr.UploadedURL
			}
			return m.fail(msg.Err)
		}
		m.phase = PhaseSubmitted
		m.status = msg.Result.Attempt.Status
		m.content = msg.Result.Attempt.Content
		m.notice = "Your answer was submitted."
		m.deps.Player.Release()
		return m, nil
	}
	return m, nil
}

// fail shows err and moves back to the last phase the learner can act from.
func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	m.errText = describe(err)
	switch {
	case errors.Is(err, attempt.ErrReadOnly):
		m.phase = PhaseSubmitted
		m.deps.Player.Release()
		return m, m.statusCmd()
	case m.artifact != nil || m.uploaded != "":
		m.phase = PhaseReview
	default:
		m.phase = PhaseReady
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC || (key == KeyQuit && m.phase != PhaseConfirm) {
		return m.quit()
	}

	switch m.phase {
	case PhaseReady, PhaseReview:
		switch key {
		case KeyRecord, KeySpace:
			return m.record()
		case KeyPlay:
			return m.togglePlay()
		case KeySubmit:
			if m.phase == PhaseReady {
				// let the orchestrator report what is missing
				return m.submit()
			}
			m.phase = PhaseConfirm
			m.errText = ""
		}

	case PhaseRecording:
		if (key == KeyRecord || key == KeySpace || key == KeyEnter) && !m.stopping {
			m.stopping = true
			return m, m.stopCmd()
		}

	case PhaseConfirm:
		switch key {
		case KeyYes, KeyEnter:
			return m.submit()
		case KeyNo, KeyEsc, KeyQuit:
			m.phase = PhaseReview
		}
	}
	return m, nil
}

func (m Model) record() (tea.Model, tea.Cmd) {
	m.gen++
	m.deps.Player.Release()
	m.recording, m.artifact, m.uploaded = nil, nil, ""
	m.playing, m.stopping = false, false
	m.errText, m.notice = "", ""
	m.phase = PhaseStarting
	return m, m.startCmd(m.gen)
}

func (m Model) togglePlay() (tea.Model, tea.Cmd) {
	if m.artifact == nil {
		return m, nil
	}
	if m.playing {
		m.deps.Player.Stop()
		m.playing = false
		return m, nil
	}
	m.playing = true
	return m, m.playCmd(m.gen)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	req := submission.Request{AttemptID: m.deps.AttemptID}
	switch {
	case m.uploaded != "":
		req.UploadedURL = m.uploaded
	case m.phase == PhaseReady:
		// nothing reviewed yet, the orchestrator reports what is missing
	default:
		req.Recording, req.Artifact = m.recording, m.artifact
	}
	if m.playing {
		m.deps.Player.Stop()
		m.playing = false
	}
	m.phase = PhaseSubmitting
	m.stage = ""
	m.errText = ""
	return m, m.submitCmd(m.gen, req)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.phase == PhaseRecording || m.phase == PhaseStarting {
		m.deps.Recorder.Stop()
	}
	m.deps.Player.Release()
	m.cancel()
	return m, tea.Quit
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("LingoLab · Speaking"))
	b.WriteString("\n\n")
	if m.deps.Prompt != "" {
		b.WriteString(promptStyle.Render(m.deps.Prompt))
		b.WriteString("\n\n")
	}
	b.WriteString(statusStyle.Render(fmt.Sprintf("Attempt %s · %s", m.deps.AttemptID, m.statusLabel())))
	b.WriteString("\n\n")
	b.WriteString(m.renderBody())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString("\n" + successStyle.Render(m.notice) + "\n")
	}
	if m.errText != "" {
		b.WriteString("\n" + errorStyle.Render(m.errText) + "\n")
	}
	b.WriteString("\n" + m.renderHelp() + "\n")
	return b.String()
}

func (m Model) statusLabel() string {
	if m.status == "" {
		return "loading"
	}
	return string(m.status)
}

func (m Model) renderBody() string {
	switch m.phase {
	case PhaseLoading:
		return busyStyle.Render("Loading attempt...")
	case PhaseUnavailable:
		return errorStyle.Render("The attempt could not be loaded.")
	case PhaseReady:
		return "Press r to start recording your answer."
	case PhaseStarting:
		return busyStyle.Render("Opening microphone...")
	case PhaseRecording:
		label := "● REC"
		if m.stopping {
			label = "■ stopping"
		}
		return fmt.Sprintf("%s %s / %s  %s  %s left",
			recordingStyle.Render(label),
			formatDuration(m.elapsed),
			formatDuration(m.deps.Recorder.MaxDuration()),
			renderBar(m.elapsed, m.deps.Recorder.MaxDuration(), barWidth),
			formatDuration(m.remaining),
		)
	case PhaseEncoding:
		return busyStyle.Render("Encoding recording...")
	case PhaseReview:
		return m.renderReview()
	case PhaseConfirm:
		return m.renderReview() + "\n\n" + keyStyle.Render("Submit this answer? It cannot be changed afterwards. [y/n]")
	case PhaseSubmitting:
		stage := string(m.stage)
		if stage == "" {
			stage = "starting"
		}
		return busyStyle.Render("Submitting (" + stage + ")...")
	case PhaseSubmitted:
		s := successStyle.Render("Submitted.") + " This attempt is read-only."
		if m.content != "" {
			s += "\n" + statusStyle.Render(m.content)
		}
		return s
	}
	return ""
}

func (m Model) renderReview() string {
	if m.artifact == nil {
		return fmt.Sprintf("Recorded %s. The upload is kept for retry.", formatDuration(m.elapsed))
	}
	s := fmt.Sprintf("Recorded %s · %s MP3 (%d kbps mono)",
		formatDuration(m.artifact.Duration), formatSize(m.artifact.SizeBytes), m.artifact.Bitrate)
	if m.playing {
		s += "  " + busyStyle.Render("▶ playing")
	}
	return s
}

func (m Model) renderHelp() string {
	var keys [][2]string
	switch m.phase {
	case PhaseReady:
		keys = [][2]string{{"r", "record"}, {"s", "submit"}}
	case PhaseRecording:
		keys = [][2]string{{"r", "stop"}}
	case PhaseReview:
		keys = [][2]string{{"p", "play"}, {"r", "re-record"}, {"s", "submit"}}
		if m.playing {
			keys[0][1] = "stop playback"
		}
	case PhaseConfirm:
		keys = [][2]string{{"y", "confirm"}, {"n", "cancel"}}
	}
	keys = append(keys, [2]string{"q", "quit"})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, keyStyle.Render(k[0])+" "+helpStyle.Render(k[1]))
	}
	return strings.Join(parts, helpStyle.Render(" · "))
}

func renderBar(elapsed, total time.Duration, width int) string {
	filled := 0
	if total > 0 {
		filled = int(float64(width) * float64(elapsed) / float64(total))
	}
	if filled > width {
		filled = width
	}
	return barFullStyle.Render(strings.Repeat("█", filled)) + barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func formatSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	if n < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
}

func describe(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Microphone access was denied. Allow access to the microphone and try again."
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "No microphone is available. Plug one in and try again."
	case errors.Is(err, capture.ErrEmptyCapture):
		return "Nothing was recorded. Try again."
	case errors.Is(err, attempt.ErrReadOnly):
		return "This attempt was already submitted."
	case errors.Is(err, submission.ErrNothingToSubmit):
		return "Nothing to submit yet: press r to record your answer."
	case errors.Is(err, submission.ErrUploadFailure):
		return "Uploading the recording failed. Press s to try again."
	case errors.Is(err, attempt.ErrSubmitFailure):
		return "Submitting failed. Press s to try again, your recording is kept."
	case errors.Is(err, transcode.ErrTranscode):
		return "The recording could not be encoded. Record it again."
	case errors.Is(err, attempt.ErrNotFound):
		return "This attempt does not exist."
	}
	return err.Error()
}
