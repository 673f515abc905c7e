package attempt

import (
	"time"

	"github.com/heluDuyne/lingolab/core"
)

type SkillType string

const (
	SkillWriting  SkillType = "writing"
	SkillSpeaking SkillType = "speaking"
)

type Status string

// Statuses
const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusScored    Status = "scored"
)

// IsTerminal reports whether the status is read-only.
func (s Status) IsTerminal() bool {
	return s == StatusSubmitted || s == StatusScored
}

type Attempt struct {
	ID           string     `json:"id"`
	LearnerID    string     `json:"learner_id"`
	PromptID     string     `json:"prompt_id"`
	AssignmentID string     `json:"assignment_id,omitempty"`
	SkillType    SkillType  `json:"skill_type"`
	Status       Status     `json:"status"`
	Content      string     `json:"content,omitempty"` // text or uploaded media URL
	Score        *float64   `json:"score,omitempty"`
	Feedback     string     `json:"feedback,omitempty"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	ScoredAt     *time.Time `json:"scored_at,omitempty"`
}

func (a Attempt) IsReadOnly() bool {
	return a.Status.IsTerminal()
}

type Prompt struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SkillType SkillType `json:"skill_type,omitempty"`
}

type Assignment struct {
	ID               string `json:"id"`
	LearnerID        string `json:"learner_id"`
	AttemptID        string `json:"attempt_id,omitempty"`
	SubmissionStatus Status `json:"submission_status,omitempty"`
	Prompt           Prompt `json:"prompt"`
}

// NewAttempt contains information needed to create (or resume) an Attempt.
type NewAttempt struct {
	LearnerID    string    `json:"learner_id" validate:"required,alphanum_"`
	PromptID     string    `json:"prompt_id" validate:"required,alphanum_"`
	AssignmentID string    `json:"assignment_id" validate:"omitempty,alphanum_"`
	SkillType    SkillType `json:"skill_type" validate:"required,oneof=writing speaking"`
}

func (na *NewAttempt) Clean() {
	na.LearnerID = core.CleanString(na.LearnerID)
	na.PromptID = core.CleanString(na.PromptID)
	na.AssignmentID = core.CleanString(na.AssignmentID)
	na.SkillType = SkillType(core.CleanString(string(na.SkillType), true /* lower */))
	if na.SkillType == "" {
		na.SkillType = SkillSpeaking
	}
}

func (na *NewAttempt) Validate() error {
	na.Clean()
	return core.Validate.Struct(na)
}

func (na NewAttempt) key() pairKey {
	return pairKey{learnerID: na.LearnerID, promptID: na.PromptID}
}

// Submission is the body of the submit call: raw text or the uploaded audio URL.
type Submission struct {
	Content string `json:"content" validate:"required,notblank"`
}

func (s *Submission) Validate() error {
	s.Content = core.CleanString(s.Content)
	return core.Validate.Struct(s)
}

// Grade is what a reviewer provides to score a submitted Attempt.
type Grade struct {
	Score    *float64 `json:"score" validate:"required,gte=0,lte=100"`
	Feedback string   `json:"feedback"`
}

func (g *Grade) Validate() error {
	g.Feedback = core.CleanString(g.Feedback)
	return core.Validate.Struct(g)
}

type QueryFilter struct {
	LearnerID string   `query:"learner_id"`
	PromptID  string   `query:"prompt_id"`
	Statuses  []Status `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.LearnerID = core.CleanString(qf.LearnerID)
	qf.PromptID = core.CleanString(qf.PromptID)
}

// StatusView is what a caller needs to restore its state after a reload.
type StatusView struct {
	AttemptID string   `json:"attempt_id"`
	Status    Status   `json:"status"`
	Content   string   `json:"content,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	ReadOnly  bool     `json:"read_only"`
}

func NewStatusView(a Attempt) StatusView {
	return StatusView{
		AttemptID: a.ID,
		Status:    a.Status,
		Content:   a.Content,
		Score:     a.Score,
		ReadOnly:  a.IsReadOnly(),
	}
}
