package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/core/capture"
	"github.com/heluDuyne/lingolab/core/transcode"
)

var (
	ErrNothingToSubmit = errors.New("nothing to submit")
	ErrUploadFailure   = errors.New("upload failed")
)

type Stage string

const (
	StageCheck     Stage = "check"
	StageTranscode Stage = "transcode"
	StageUpload    Stage = "upload"
	StageSubmit    Stage = "submit"
	StageDone      Stage = "done"
)

// Error reports the stage a submission failed at. UploadedURL is set when the
// artifact was already uploaded, so a retry can skip straight to StageSubmit.
type Error struct {
	Stage       Stage
	UploadedURL string
	Err         error
}

func (err *Error) Error() string {
	return fmt.Sprintf("submission %s: %v", err.Stage, err.Err)
}

func (err *Error) Unwrap() error { return err.Err }

// Upload is an encoded artifact handed to the upload collaborator.
type Upload struct {
	AttemptID string
	FileName  string
	MimeType  string
	Data      []byte
}

// Reference is the persistent location of an uploaded artifact.
type Reference struct {
	URL string `json:"url"`
}

type Uploader interface {
	Upload(ctx context.Context, up Upload) (Reference, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, src []byte) (transcode.Artifact, error)
}

type Coordinator interface {
	EnsureWritable(ctx context.Context, id string) error
	Submit(ctx context.Context, id, content string) (attempt.Attempt, error)
}

// Observer receives stage timings. services/metrics implements it.
type Observer interface {
	ObserveStage(stage string, took time.Duration, err error)
	ObserveTranscode(took time.Duration, size int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, error)  {}
func (nopObserver) ObserveTranscode(time.Duration, int, error) {}

type Request struct {
	AttemptID   string
	Recording   *capture.Recording  // new capture; takes precedence over UploadedURL
	Artifact    *transcode.Artifact // Recording already transcoded for preview
	UploadedURL string              // artifact uploaded by a previous, failed try
	Text        string              // writing attempts
}

type Result struct {
	Attempt     attempt.Attempt
	Artifact    *transcode.Artifact
	UploadedURL string
}

type Orchestrator struct {
	attempts   Coordinator
	transcoder Transcoder
	uploader   Uploader
	observer   Observer
	logger     core.Logger

	mu         sync.Mutex
	onProgress func(Stage)
}

func NewOrchestrator(attempts Coordinator, transcoder Transcoder, uploader Uploader, observer Observer, logger core.Logger) (*Orchestrator, error) {
	err := vala.BeginValidation().Validate(
		core.IsNotNil(attempts, "attempts"),
		core.IsNotNil(transcoder, "transcoder"),
		core.IsNotNil(uploader, "uploader"),
		core.IsNotNil(logger, "logger"),
	).Check()
	if err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		attempts:   attempts,
		transcoder: transcoder,
		uploader:   uploader,
		observer:   observer,
		logger:     logger,
	}, nil
}

// OnProgress registers fn to be called as each stage begins.
func (o *Orchestrator) OnProgress(fn func(Stage)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onProgress = fn
}

func (o *Orchestrator) progress(stage Stage) {
	o.mu.Lock()
	fn := o.onProgress
	o.mu.Unlock()
	if fn != nil {
		fn(stage)
	}
}

// Submit runs check, transcode, upload and submit in order. A failure at any
// stage leaves the attempt in its pre-submission status; calling Submit again
// with the returned Error's UploadedURL resumes without re-uploading.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Result, error) {
	var res Result
	extras := map[string]interface{}{"attempt_id": req.AttemptID}

	err := o.stage(StageCheck, func() error {
		if req.Recording == nil && req.Artifact == nil && req.UploadedURL == "" && core.CleanString(req.Text) == "" {
			return ErrNothingToSubmit
		}
		if req.Recording != nil && req.Recording.Size() == 0 {
			return ErrNothingToSubmit
		}
		if req.Artifact != nil && req.Artifact.SizeBytes == 0 {
			return ErrNothingToSubmit
		}
		return o.attempts.EnsureWritable(ctx, req.AttemptID)
	})
	if err != nil {
		return res, o.fail(StageCheck, "", err, extras)
	}

	content := req.UploadedURL
	switch {
	case req.Recording != nil || req.Artifact != nil:
		var art transcode.Artifact
		if req.Artifact != nil {
			art = *req.Artifact
		} else {
			art, err = o.transcode(ctx, req.Recording)
			if err != nil {
				return res, o.fail(StageTranscode, "", err, extras)
			}
		}
		res.Artifact = &art

		err = o.stage(StageUpload, func() error {
			ref, err := o.uploader.Upload(ctx, Upload{
				AttemptID: req.AttemptID,
				FileName:  fileName(req.AttemptID),
				MimeType:  art.MimeType,
				Data:      art.Data,
			})
			if err != nil {
				return errors.Wrap(ErrUploadFailure, err.Error())
			}
			if ref.URL == "" {
				return errors.Wrap(ErrUploadFailure, "empty reference")
			}
			content = ref.URL
			return nil
		})
		if err != nil {
			return res, o.fail(StageUpload, "", err, extras)
		}
		res.UploadedURL = content
	case content == "":
		content = core.CleanString(req.Text)
	}

	err = o.stage(StageSubmit, func() error {
		att, err := o.attempts.Submit(ctx, req.AttemptID, content)
		res.Attempt = att
		return err
	})
	if err != nil {
		return Result{UploadedURL: res.UploadedURL}, o.fail(StageSubmit, res.UploadedURL, err, extras)
	}

	o.progress(StageDone)
	extras["status"] = res.Attempt.Status
	o.logger.Info("attempt submitted", extras)
	return res, nil
}

func (o *Orchestrator) stage(stage Stage, fn func() error) error {
	o.progress(stage)
	start := time.Now()
	err := fn()
	o.observer.ObserveStage(string(stage), time.Since(start), err)
	return err
}

func (o *Orchestrator) transcode(ctx context.Context, rec *capture.Recording) (art transcode.Artifact, err error) {
	err = o.stage(StageTranscode, func() error {
		start := time.Now()
		art, err = o.transcoder.Transcode(ctx, rec.Data)
		o.observer.ObserveTranscode(time.Since(start), art.SizeBytes, err)
		return err
	})
	return art, err
}

func (o *Orchestrator) fail(stage Stage, uploadedURL string, err error, extras map[string]interface{}) error {
	if errors.Is(err, ErrNothingToSubmit) || errors.Is(err, attempt.ErrReadOnly) {
		o.logger.Debug(fmt.Sprintf("submission rejected at %s: %v", stage, err), extras)
	} else {
		o.logger.Error(fmt.Sprintf("submission failed at %s", stage), err, extras)
	}
	return &Error{Stage: stage, UploadedURL: uploadedURL, Err: err}
}

func fileName(attemptID string) string {
	return fmt.Sprintf("%s-%s.mp3", attemptID, uuid.New().String()[:8])
}
