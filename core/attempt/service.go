package attempt

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
)

type (
	// Repository is the Attempt API.
	Repository interface {
		// CreateAttempt returns a *ConflictError when a live attempt exists for the pair.
		CreateAttempt(ctx context.Context, na NewAttempt) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		SubmitAttempt(ctx context.Context, id string, sub Submission) (Attempt, error)
	}

	// AssignmentRepository is the Assignment API.
	AssignmentRepository interface {
		GetAssignment(ctx context.Context, id string) (Assignment, error)
	}

	pairKey struct {
		learnerID string
		promptID  string
	}

	// Service coordinates the lifecycle of remote attempts on the learner's side.
	// One Service should be shared by everything working on the same learner.
	Service struct {
		attempts    Repository
		assignments AssignmentRepository
		logger      core.Logger

		mu    sync.Mutex
		locks map[pairKey]*sync.Mutex
		pairs map[pairKey]string // {pair: attemptID}
		cache map[string]Attempt // {attemptID: Attempt}
	}
)

func NewService(attempts Repository, assignments AssignmentRepository, logger core.Logger) *Service {
	return &Service{
		attempts:    attempts,
		assignments: assignments,
		logger:      logger,
		locks:       make(map[pairKey]*sync.Mutex),
		pairs:       make(map[pairKey]string),
		cache:       make(map[string]Attempt),
	}
}

func (svc *Service) lock(key pairKey) func() {
	svc.mu.Lock()
	l, ok := svc.locks[key]
	if !ok {
		l = new(sync.Mutex)
		svc.locks[key] = l
	}
	svc.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (svc *Service) remember(att Attempt) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.cache[att.ID] = att
	svc.pairs[pairKey{learnerID: att.LearnerID, promptID: att.PromptID}] = att.ID
}

func (svc *Service) forget(key pairKey) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if id, ok := svc.pairs[key]; ok {
		delete(svc.cache, id)
		delete(svc.pairs, key)
	}
}

func (svc *Service) cachedID(key pairKey) (string, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	id, ok := svc.pairs[key]
	return id, ok
}

// Cached returns the last known state of an attempt without calling the Attempt API.
func (svc *Service) Cached(id string) (Attempt, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	att, ok := svc.cache[id]
	return att, ok
}

// Resolve returns the attempt of the (learner, prompt) pair, creating it only when none exists.
// When na.AssignmentID is set, the assignment is consulted first and supplies the prompt if
// na.PromptID is empty.
func (svc *Service) Resolve(ctx context.Context, na NewAttempt) (Attempt, error) {
	na.Clean()

	var asgmt *Assignment
	if na.AssignmentID != "" {
		a, err := svc.assignments.GetAssignment(ctx, na.AssignmentID)
		if err != nil {
			return Attempt{}, errors.Wrap(err, "getting assignment")
		}
		if na.PromptID == "" {
			na.PromptID = a.Prompt.ID
		}
		if a.Prompt.SkillType != "" {
			na.SkillType = a.Prompt.SkillType
		}
		asgmt = &a
	}
	if err := na.Validate(); err != nil {
		return Attempt{}, err
	}

	key := na.key()
	unlock := svc.lock(key)
	defer unlock()

	if id, ok := svc.cachedID(key); ok {
		att, err := svc.attempts.GetAttempt(ctx, id)
		switch {
		case err == nil:
			svc.remember(att)
			return att, nil
		case errors.Is(err, ErrNotFound):
			svc.forget(key)
		default:
			return Attempt{}, errors.Wrap(err, "refreshing attempt")
		}
	}

	if asgmt != nil && asgmt.AttemptID != "" {
		att, err := svc.attempts.GetAttempt(ctx, asgmt.AttemptID)
		if err != nil {
			return Attempt{}, errors.Wrap(err, "getting assignment attempt")
		}
		svc.remember(att)
		return att, nil
	}

	att, err := svc.attempts.CreateAttempt(ctx, na)
	if err == nil {
		svc.logger.Info("attempt created", map[string]interface{}{"attempt_id": att.ID, "learner_id": att.LearnerID, "prompt_id": att.PromptID})
		svc.remember(att)
		return att, nil
	}

	cErr, ok := IsConflict(err)
	if !ok {
		return Attempt{}, errors.Wrap(err, "creating attempt")
	}
	att, err = svc.resolveConflict(ctx, na, cErr)
	if err != nil {
		return Attempt{}, err
	}
	svc.remember(att)
	return att, nil
}

// resolveConflict fetches the attempt that won a creation race.
func (svc *Service) resolveConflict(ctx context.Context, na NewAttempt, cErr *ConflictError) (Attempt, error) {
	id := cErr.AttemptID
	if id == "" && na.AssignmentID != "" {
		asgmt, err := svc.assignments.GetAssignment(ctx, na.AssignmentID)
		if err != nil {
			return Attempt{}, errors.Wrap(err, "re-fetching assignment")
		}
		id = asgmt.AttemptID
	}
	if id == "" {
		return Attempt{}, cErr
	}

	svc.logger.Warn("attempt conflict resolved to existing attempt", map[string]interface{}{"attempt_id": id, "learner_id": na.LearnerID, "prompt_id": na.PromptID})
	att, err := svc.attempts.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting conflicting attempt")
	}
	return att, nil
}

// GetStatus fetches the current state of an attempt.
func (svc *Service) GetStatus(ctx context.Context, id string) (StatusView, error) {
	att, err := svc.attempts.GetAttempt(ctx, id)
	if err != nil {
		return StatusView{}, errors.Wrap(err, "getting attempt")
	}
	svc.remember(att)
	return NewStatusView(att), nil
}

// EnsureWritable returns ErrReadOnly once the attempt reached a terminal status.
func (svc *Service) EnsureWritable(ctx context.Context, id string) error {
	view, err := svc.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	if view.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Gate returns a check suitable for gating a new capture on the attempt's status.
func (svc *Service) Gate(id string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return svc.EnsureWritable(ctx, id)
	}
}

// Submit submits content (raw text or uploaded media URL) for the attempt.
// Failures are *SubmitError and never update the cached attempt.
func (svc *Service) Submit(ctx context.Context, id, content string) (Attempt, error) {
	sub := Submission{Content: content}
	if err := sub.Validate(); err != nil {
		return Attempt{}, &SubmitError{AttemptID: id, Err: err}
	}
	if err := svc.EnsureWritable(ctx, id); err != nil {
		return Attempt{}, &SubmitError{AttemptID: id, Err: err}
	}

	att, err := svc.attempts.SubmitAttempt(ctx, id, sub)
	if err != nil {
		return Attempt{}, &SubmitError{AttemptID: id, Err: err}
	}
	if att.Content == "" || !att.Status.IsTerminal() {
		return Attempt{}, &SubmitError{AttemptID: id, Err: errors.Errorf("unexpected state after submit: %s", att.Status)}
	}
	svc.remember(att)
	return att, nil
}
