package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	inmemdb "github.com/heluDuyne/lingolab/storage/database/inmem"
	sqlxrepos "github.com/heluDuyne/lingolab/storage/database/sqlx"
	testutil "github.com/heluDuyne/lingolab/tests"
)

func stores(t *testing.T) map[string]attempt.Store {
	conf := testutil.NewConfig(t)
	db := testutil.OpenDB(t, conf)
	return map[string]attempt.Store{
		"inmem": inmemdb.NewAttemptStore(inmemdb.NewDB()),
		"sqlx":  sqlxrepos.NewAttemptStore(db),
	}
}

func TestAttemptStore(t *testing.T) {
	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

			asgmt, err := store.InsertAssignment(ctx, attempt.Assignment{
				ID:        "asgmt1",
				LearnerID: "learner1",
				Prompt:    attempt.Prompt{ID: "prompt1", Content: "Describe a trip.", SkillType: attempt.SkillSpeaking},
			})
			require.NoError(t, err)

			att := attempt.Attempt{
				ID:           "att1",
				LearnerID:    "learner1",
				PromptID:     "prompt1",
				AssignmentID: asgmt.ID,
				SkillType:    attempt.SkillSpeaking,
				Status:       attempt.StatusPending,
				CreatedAt:    created,
			}
			_, err = store.InsertAttempt(ctx, att)
			require.NoError(t, err)
			require.NoError(t, store.LinkAssignment(ctx, asgmt.ID, att.ID))

			// only one live attempt per pair
			dup := att
			dup.ID = "att2"
			_, err = store.InsertAttempt(ctx, dup)
			cErr, ok := attempt.IsConflict(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, att.ID, cErr.AttemptID)

			got, err := store.GetAttempt(ctx, att.ID)
			require.NoError(t, err)
			assert.Equal(t, att.LearnerID, got.LearnerID)
			assert.Equal(t, asgmt.ID, got.AssignmentID)
			assert.True(t, created.Equal(got.CreatedAt))
			assert.Nil(t, got.Score)
			assert.Nil(t, got.SubmittedAt)

			live, err := store.FindLiveAttempt(ctx, "learner1", "prompt1")
			require.NoError(t, err)
			assert.Equal(t, att.ID, live.ID)

			gotAsgmt, err := store.GetAssignment(ctx, asgmt.ID)
			require.NoError(t, err)
			assert.Equal(t, att.ID, gotAsgmt.AttemptID)
			assert.Equal(t, "Describe a trip.", gotAsgmt.Prompt.Content)

			submitted := created.Add(time.Minute)
			got.Status = attempt.StatusSubmitted
			got.Content = "http://localhost/media/att1.mp3"
			got.SubmittedAt = &submitted
			got, err = store.UpdateAttempt(ctx, got, attempt.StatusPending)
			require.NoError(t, err)
			assert.Equal(t, attempt.StatusSubmitted, got.Status)
			require.NotNil(t, got.SubmittedAt)
			assert.True(t, submitted.Equal(*got.SubmittedAt))

			// stale transition
			_, err = store.UpdateAttempt(ctx, got, attempt.StatusPending)
			assert.True(t, errors.Is(err, attempt.ErrReadOnly))

			_, err = store.FindLiveAttempt(ctx, "learner1", "prompt1")
			assert.True(t, errors.Is(err, attempt.ErrNotFound))

			// a new live attempt can now be created
			dup.CreatedAt = created.Add(time.Hour)
			_, err = store.InsertAttempt(ctx, dup)
			require.NoError(t, err)

			atts, err := store.FilterAttempts(ctx, attempt.QueryFilter{LearnerID: "learner1"}, core.DBOrdering{Field: "created_at"})
			require.NoError(t, err)
			require.Len(t, atts, 2)
			assert.Equal(t, dup.ID, atts[0].ID)

			atts, err = store.FilterAttempts(ctx, attempt.QueryFilter{Statuses: []attempt.Status{attempt.StatusSubmitted}})
			require.NoError(t, err)
			require.Len(t, atts, 1)
			assert.Equal(t, att.ID, atts[0].ID)

			_, err = store.GetAttempt(ctx, "missing")
			assert.True(t, errors.Is(err, attempt.ErrNotFound))
			_, err = store.GetAssignment(ctx, "missing")
			assert.True(t, errors.Is(err, attempt.ErrAssignmentNotFound))
		})
	}
}
