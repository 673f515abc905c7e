package attempt

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
)

type (
	// Store persists attempts and assignments on the grading side.
	Store interface {
		// InsertAttempt returns a *ConflictError when a pending attempt exists for the pair.
		InsertAttempt(ctx context.Context, att Attempt) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		FindLiveAttempt(ctx context.Context, learnerID, promptID string) (Attempt, error)
		FilterAttempts(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Attempt, error)
		// UpdateAttempt only updates an attempt whose status is still `from`.
		UpdateAttempt(ctx context.Context, att Attempt, from Status) (Attempt, error)

		InsertAssignment(ctx context.Context, asgmt Assignment) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		LinkAssignment(ctx context.Context, assignmentID, attemptID string) error
	}

	// Registry is the grading side of the Attempt and Assignment APIs.
	// It also satisfies Repository and AssignmentRepository for in-process use.
	Registry struct {
		store     Store
		mailSvc   core.EmailService
		reviewers []mail.Address
	}

	SubmittedNotice struct {
		AttemptID string
		LearnerID string
		PromptID  string
		SkillType SkillType
		Content   string
	}
)

var (
	_ Repository           = (*Registry)(nil)
	_ AssignmentRepository = (*Registry)(nil)

	nowFunc = time.Now
)

func NewRegistry(store Store, mailSvc core.EmailService, conf *core.Config) *Registry {
	reviewers := make([]mail.Address, 0, len(conf.Server.ReviewerEmails))
	for _, email := range conf.Server.ReviewerEmails {
		reviewers = append(reviewers, mail.Address{Address: email})
	}
	return &Registry{
		store:     store,
		mailSvc:   mailSvc,
		reviewers: reviewers,
	}
}

// CreateAttempt creates a pending attempt, failing with *ConflictError if the pair already has one.
func (reg *Registry) CreateAttempt(ctx context.Context, na NewAttempt) (Attempt, error) {
	if err := na.Validate(); err != nil {
		return Attempt{}, err
	}

	if na.AssignmentID != "" {
		asgmt, err := reg.store.GetAssignment(ctx, na.AssignmentID)
		if err != nil {
			return Attempt{}, err
		}
		if asgmt.AttemptID != "" {
			return Attempt{}, &ConflictError{AttemptID: asgmt.AttemptID}
		}
		if asgmt.LearnerID != na.LearnerID || asgmt.Prompt.ID != na.PromptID {
			return Attempt{}, core.NewValidationError(nil, core.FieldError{
				Field: "assignment_id",
				Error: "assignment does not belong to this learner and prompt",
			})
		}
	}

	att, err := reg.store.InsertAttempt(ctx, Attempt{
		ID:           uuid.New().String(),
		LearnerID:    na.LearnerID,
		PromptID:     na.PromptID,
		AssignmentID: na.AssignmentID,
		SkillType:    na.SkillType,
		Status:       StatusPending,
		CreatedAt:    nowFunc().UTC(),
	})
	if err != nil {
		return Attempt{}, err
	}

	if na.AssignmentID != "" {
		if err = reg.store.LinkAssignment(ctx, na.AssignmentID, att.ID); err != nil {
			return Attempt{}, errors.Wrap(err, "linking assignment")
		}
	}
	return att, nil
}

func (reg *Registry) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return reg.store.GetAttempt(ctx, id)
}

func (reg *Registry) FilterAttempts(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Attempt, error) {
	filter.Clean()
	return reg.store.FilterAttempts(ctx, filter, ordering...)
}

// SubmitAttempt moves a pending attempt to submitted and notifies reviewers.
func (reg *Registry) SubmitAttempt(ctx context.Context, id string, sub Submission) (Attempt, error) {
	if err := sub.Validate(); err != nil {
		return Attempt{}, err
	}
	att, err := reg.store.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if att.IsReadOnly() {
		return Attempt{}, ErrReadOnly
	}

	now := nowFunc().UTC()
	att.Status = StatusSubmitted
	att.Content = sub.Content
	att.SubmittedAt = &now
	if att, err = reg.store.UpdateAttempt(ctx, att, StatusPending); err != nil {
		return Attempt{}, err
	}

	reg.notifyReviewers(att)
	return att, nil
}

// ScoreAttempt grades a submitted attempt.
func (reg *Registry) ScoreAttempt(ctx context.Context, id string, grade Grade) (Attempt, error) {
	if err := grade.Validate(); err != nil {
		return Attempt{}, err
	}
	att, err := reg.store.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if att.Status != StatusSubmitted {
		if att.Status == StatusScored {
			return Attempt{}, ErrReadOnly
		}
		return Attempt{}, ErrNotSubmitted
	}

	now := nowFunc().UTC()
	att.Status = StatusScored
	att.Score = grade.Score
	att.Feedback = grade.Feedback
	att.ScoredAt = &now
	return reg.store.UpdateAttempt(ctx, att, StatusSubmitted)
}

// CreateAssignment creates an assignment of a prompt to a learner.
func (reg *Registry) CreateAssignment(ctx context.Context, learnerID string, prompt Prompt) (Assignment, error) {
	learnerID = core.CleanString(learnerID)
	prompt.ID = core.CleanString(prompt.ID)
	if learnerID == "" || prompt.ID == "" {
		return Assignment{}, core.NewValidationError(nil, core.FieldError{Field: "learner_id", Error: "learner and prompt are required"})
	}
	if prompt.SkillType == "" {
		prompt.SkillType = SkillSpeaking
	}
	return reg.store.InsertAssignment(ctx, Assignment{
		ID:        uuid.New().String(),
		LearnerID: learnerID,
		Prompt:    prompt,
	})
}

func (reg *Registry) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	asgmt, err := reg.store.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if asgmt.AttemptID != "" {
		att, err := reg.store.GetAttempt(ctx, asgmt.AttemptID)
		if err != nil {
			return Assignment{}, errors.Wrap(err, "getting assignment attempt")
		}
		asgmt.SubmissionStatus = att.Status
	}
	return asgmt, nil
}

func (reg *Registry) notifyReviewers(att Attempt) {
	if len(reg.reviewers) == 0 || reg.mailSvc == nil {
		return
	}
	reg.mailSvc.SendMessages(&core.EmailMessage{
		To:           reg.reviewers,
		Subject:      fmt.Sprintf("New %s response to review", att.SkillType),
		TemplateName: "attempt_submitted",
		TemplateData: SubmittedNotice{
			AttemptID: att.ID,
			LearnerID: att.LearnerID,
			PromptID:  att.PromptID,
			SkillType: att.SkillType,
			Content:   att.Content,
		},
	})
}
