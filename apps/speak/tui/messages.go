package tui

import (
	"time"

	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/core/capture"
	"github.com/heluDuyne/lingolab/core/submission"
	"github.com/heluDuyne/lingolab/core/transcode"
)

// Results of background work carry the generation they were started for.
// A result whose generation is no longer current is dropped.

// StatusMsg carries the attempt status loaded on start.
type StatusMsg struct {
	View attempt.StatusView
	Err  error
}

// StartedMsg is sent once the input device was acquired, or failed to be.
type StartedMsg struct {
	Gen uint64
	Err error
}

// TickMsg refreshes the recording timer.
type TickMsg time.Time

// RecordedMsg carries a finalized recording.
type RecordedMsg struct {
	Gen       uint64
	Recording capture.Recording
	Err       error
}

// EncodedMsg carries the MP3 artifact of a recording, ready for preview.
type EncodedMsg struct {
	Gen      uint64
	Artifact transcode.Artifact
	Err      error
}

// PlayedMsg is sent when a preview playback ends.
type PlayedMsg struct {
	Gen uint64
	Err error
}

// ProgressMsg reports the stage a submission entered.
type ProgressMsg struct {
	Stage submission.Stage
}

// SubmittedMsg carries the outcome of a submission.
type SubmittedMsg struct {
	Gen    uint64
	Result submission.Result
	Err    error
}
