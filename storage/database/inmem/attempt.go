package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
)

type attemptStore struct {
	attempts    *attemptTable
	assignments *assignmentTable
}

var _ attempt.Store = (*attemptStore)(nil)

func NewAttemptStore(db *DB) attempt.Store {
	return &attemptStore{attempts: db.attempt, assignments: db.assignment}
}

func (repo *attemptStore) query() []attempt.Attempt {
	atts := make([]attempt.Attempt, 0, len(repo.attempts.table))
	for _, a := range repo.attempts.table {
		atts = append(atts, *a)
	}
	return atts
}

func (repo *attemptStore) findLive(learnerID, promptID string) (attempt.Attempt, bool) {
	for _, a := range repo.attempts.table {
		if a.LearnerID == learnerID && a.PromptID == promptID && !a.Status.IsTerminal() {
			return *a, true
		}
	}
	return attempt.Attempt{}, false
}

func (repo *attemptStore) InsertAttempt(_ context.Context, att attempt.Attempt) (attempt.Attempt, error) {
	repo.attempts.mutex.Lock()
	defer repo.attempts.mutex.Unlock()

	if live, ok := repo.findLive(att.LearnerID, att.PromptID); ok {
		return attempt.Attempt{}, &attempt.ConflictError{AttemptID: live.ID}
	}
	repo.attempts.table[att.ID] = &att
	return att, nil
}

func (repo *attemptStore) GetAttempt(_ context.Context, id string) (attempt.Attempt, error) {
	repo.attempts.mutex.RLock()
	defer repo.attempts.mutex.RUnlock()

	if att, ok := repo.attempts.table[id]; ok {
		return *att, nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptStore) FindLiveAttempt(_ context.Context, learnerID, promptID string) (attempt.Attempt, error) {
	repo.attempts.mutex.RLock()
	defer repo.attempts.mutex.RUnlock()

	if att, ok := repo.findLive(learnerID, promptID); ok {
		return att, nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptStore) FilterAttempts(_ context.Context, filter attempt.QueryFilter, ordering ...core.DBOrdering) ([]attempt.Attempt, error) {
	repo.attempts.mutex.RLock()
	defer repo.attempts.mutex.RUnlock()

	atts := make([]attempt.Attempt, 0)
	for _, att := range repo.query() {
		if filter.LearnerID != "" && att.LearnerID != filter.LearnerID {
			continue
		}
		if filter.PromptID != "" && att.PromptID != filter.PromptID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, att.Status) {
			continue
		}
		atts = append(atts, att)
	}

	sort.SliceStable(atts, func(i, j int) bool { return atts[i].CreatedAt.Before(atts[j].CreatedAt) })
	for _, ord := range ordering {
		if strings.ToLower(ord.Field) == "created_at" && !ord.Ascending {
			sort.SliceStable(atts, func(i, j int) bool { return atts[i].CreatedAt.After(atts[j].CreatedAt) })
		}
	}
	return atts, nil
}

func (repo *attemptStore) UpdateAttempt(_ context.Context, att attempt.Attempt, from attempt.Status) (attempt.Attempt, error) {
	repo.attempts.mutex.Lock()
	defer repo.attempts.mutex.Unlock()

	curr, ok := repo.attempts.table[att.ID]
	if !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if curr.Status != from {
		return attempt.Attempt{}, attempt.ErrReadOnly
	}
	repo.attempts.table[att.ID] = &att
	return att, nil
}

func (repo *attemptStore) InsertAssignment(_ context.Context, asgmt attempt.Assignment) (attempt.Assignment, error) {
	repo.assignments.mutex.Lock()
	defer repo.assignments.mutex.Unlock()

	repo.assignments.table[asgmt.ID] = &asgmt
	return asgmt, nil
}

func (repo *attemptStore) GetAssignment(_ context.Context, id string) (attempt.Assignment, error) {
	repo.assignments.mutex.RLock()
	defer repo.assignments.mutex.RUnlock()

	if asgmt, ok := repo.assignments.table[id]; ok {
		return *asgmt, nil
	}
	return attempt.Assignment{}, attempt.ErrAssignmentNotFound
}

func (repo *attemptStore) LinkAssignment(_ context.Context, assignmentID, attemptID string) error {
	repo.assignments.mutex.Lock()
	defer repo.assignments.mutex.Unlock()

	asgmt, ok := repo.assignments.table[assignmentID]
	if !ok {
		return attempt.ErrAssignmentNotFound
	}
	asgmt.AttemptID = attemptID
	return nil
}

func hasStatus(statuses []attempt.Status, status attempt.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
