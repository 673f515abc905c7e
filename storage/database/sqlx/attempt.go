package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
)

const attemptColumns = `id, learner_id, prompt_id, assignment_id, skill_type, status, content, score, feedback,
	created_at, submitted_at, scored_at`

type (
	attemptRow struct {
		ID           string       `db:"id"`
		LearnerID    string       `db:"learner_id"`
		PromptID     string       `db:"prompt_id"`
		AssignmentID null.String  `db:"assignment_id"`
		SkillType    string       `db:"skill_type"`
		Status       string       `db:"status"`
		Content      null.String  `db:"content"`
		Score        null.Float64 `db:"score"`
		Feedback     null.String  `db:"feedback"`
		CreatedAt    time.Time    `db:"created_at"`
		SubmittedAt  null.Time    `db:"submitted_at"`
		ScoredAt     null.Time    `db:"scored_at"`
	}

	assignmentRow struct {
		ID              string      `db:"id"`
		LearnerID       string      `db:"learner_id"`
		PromptID        string      `db:"prompt_id"`
		PromptContent   string      `db:"prompt_content"`
		PromptSkillType string      `db:"prompt_skill_type"`
		AttemptID       null.String `db:"attempt_id"`
		CreatedAt       time.Time   `db:"created_at"`
	}

	attemptStore struct {
		db *sqlx.DB
	}
)

var _ attempt.Store = (*attemptStore)(nil)

func NewAttemptStore(db *sqlx.DB) attempt.Store {
	return &attemptStore{db: db}
}

func newAttemptRow(att attempt.Attempt) attemptRow {
	return attemptRow{
		ID:           att.ID,
		LearnerID:    att.LearnerID,
		PromptID:     att.PromptID,
		AssignmentID: null.NewString(att.AssignmentID, att.AssignmentID != ""),
		SkillType:    string(att.SkillType),
		Status:       string(att.Status),
		Content:      null.NewString(att.Content, att.Content != ""),
		Score:        null.Float64FromPtr(att.Score),
		Feedback:     null.NewString(att.Feedback, att.Feedback != ""),
		CreatedAt:    att.CreatedAt.UTC(),
		SubmittedAt:  null.TimeFromPtr(att.SubmittedAt),
		ScoredAt:     null.TimeFromPtr(att.ScoredAt),
	}
}

func (row attemptRow) toAttempt() attempt.Attempt {
	return attempt.Attempt{
		ID:           row.ID,
		LearnerID:    row.LearnerID,
		PromptID:     row.PromptID,
		AssignmentID: row.AssignmentID.String,
		SkillType:    attempt.SkillType(row.SkillType),
		Status:       attempt.Status(row.Status),
		Content:      row.Content.String,
		Score:        row.Score.Ptr(),
		Feedback:     row.Feedback.String,
		CreatedAt:    row.CreatedAt.UTC(),
		SubmittedAt:  utcPtr(row.SubmittedAt),
		ScoredAt:     utcPtr(row.ScoredAt),
	}
}

func (row assignmentRow) toAssignment() attempt.Assignment {
	return attempt.Assignment{
		ID:        row.ID,
		LearnerID: row.LearnerID,
		AttemptID: row.AttemptID.String,
		Prompt: attempt.Prompt{
			ID:        row.PromptID,
			Content:   row.PromptContent,
			SkillType: attempt.SkillType(row.PromptSkillType),
		},
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// isUniqueViolation reports a unique constraint failure on postgres or sqlite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (repo *attemptStore) InsertAttempt(ctx context.Context, att attempt.Attempt) (attempt.Attempt, error) {
	q := `INSERT INTO attempt (` + attemptColumns + `)
		VALUES (:id, :learner_id, :prompt_id, :assignment_id, :skill_type, :status, :content, :score, :feedback,
			:created_at, :submitted_at, :scored_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newAttemptRow(att)); err != nil {
		if isUniqueViolation(err) {
			live, fErr := repo.FindLiveAttempt(ctx, att.LearnerID, att.PromptID)
			if fErr != nil {
				return attempt.Attempt{}, &attempt.ConflictError{}
			}
			return attempt.Attempt{}, &attempt.ConflictError{AttemptID: live.ID}
		}
		return attempt.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return att, nil
}

func (repo *attemptStore) getAttempt(ctx context.Context, where string, args ...interface{}) (attempt.Attempt, error) {
	var row attemptRow
	q := repo.db.Rebind(`SELECT ` + attemptColumns + ` FROM attempt WHERE ` + where)
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return attempt.Attempt{}, attempt.ErrNotFound
		}
		return attempt.Attempt{}, errors.Wrap(err, "selecting attempt")
	}
	return row.toAttempt(), nil
}

func (repo *attemptStore) GetAttempt(ctx context.Context, id string) (attempt.Attempt, error) {
	return repo.getAttempt(ctx, "id = ?", id)
}

func (repo *attemptStore) FindLiveAttempt(ctx context.Context, learnerID, promptID string) (attempt.Attempt, error) {
	return repo.getAttempt(ctx, "learner_id = ? AND prompt_id = ? AND status = ?", learnerID, promptID, attempt.StatusPending)
}

func (repo *attemptStore) FilterAttempts(ctx context.Context, filter attempt.QueryFilter, ordering ...core.DBOrdering) ([]attempt.Attempt, error) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 2+len(filter.Statuses))
	if filter.LearnerID != "" {
		conds = append(conds, "learner_id = ?")
		args = append(args, filter.LearnerID)
	}
	if filter.PromptID != "" {
		conds = append(conds, "prompt_id = ?")
		args = append(args, filter.PromptID)
	}

	q := `SELECT ` + attemptColumns + ` FROM attempt`
	if len(filter.Statuses) > 0 {
		in, inArgs, err := sqlx.In("status IN (?)", filter.Statuses)
		if err != nil {
			return nil, errors.Wrap(err, "building status filter")
		}
		conds = append(conds, in)
		args = append(args, inArgs...)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	q += core.OrderBy(ordering, "created_at", "submitted_at", "scored_at", "status")

	var rows []attemptRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting attempts")
	}
	atts := make([]attempt.Attempt, 0, len(rows))
	for _, row := range rows {
		atts = append(atts, row.toAttempt())
	}
	return atts, nil
}

func (repo *attemptStore) UpdateAttempt(ctx context.Context, att attempt.Attempt, from attempt.Status) (attempt.Attempt, error) {
	row := newAttemptRow(att)
	q := repo.db.Rebind(`UPDATE attempt
		SET status = ?, content = ?, score = ?, feedback = ?, submitted_at = ?, scored_at = ?
		WHERE id = ? AND status = ?`)
	res, err := repo.db.ExecContext(ctx, q,
		row.Status, row.Content, row.Score, row.Feedback, row.SubmittedAt, row.ScoredAt, row.ID, string(from))
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	if n == 0 {
		if _, err = repo.GetAttempt(ctx, att.ID); err != nil {
			return attempt.Attempt{}, err
		}
		return attempt.Attempt{}, attempt.ErrReadOnly
	}
	return repo.GetAttempt(ctx, att.ID)
}

func (repo *attemptStore) InsertAssignment(ctx context.Context, asgmt attempt.Assignment) (attempt.Assignment, error) {
	q := repo.db.Rebind(`INSERT INTO assignment (id, learner_id, prompt_id, prompt_content, prompt_skill_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q,
		asgmt.ID, asgmt.LearnerID, asgmt.Prompt.ID, asgmt.Prompt.Content, string(asgmt.Prompt.SkillType), time.Now().UTC())
	if err != nil {
		return attempt.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return asgmt, nil
}

func (repo *attemptStore) GetAssignment(ctx context.Context, id string) (attempt.Assignment, error) {
	var row assignmentRow
	q := repo.db.Rebind(`SELECT id, learner_id, prompt_id, prompt_content, prompt_skill_type, attempt_id, created_at
		FROM assignment WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return attempt.Assignment{}, attempt.ErrAssignmentNotFound
		}
		return attempt.Assignment{}, errors.Wrap(err, "selecting assignment")
	}
	return row.toAssignment(), nil
}

func (repo *attemptStore) LinkAssignment(ctx context.Context, assignmentID, attemptID string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE assignment SET attempt_id = ? WHERE id = ?`), attemptID, assignmentID)
	if err != nil {
		return errors.Wrap(err, "linking assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attempt.ErrAssignmentNotFound
	}
	return nil
}
