package grading

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	testutil "github.com/heluDuyne/lingolab/tests"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]interface{}
}

func newTestClient(t *testing.T, status int, body string) (*Client, *recorded, *testutil.Logger) {
	t.Helper()
	rec := new(recorded)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		raw, _ := ioutil.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	logger := testutil.NewLogger()
	return NewClient(core.APIConfig{BaseURL: srv.URL, Token: "tok", Timeout: time.Second}, logger), rec, logger
}

func TestClient_CreateAttempt(t *testing.T) {
	c, rec, _ := newTestClient(t, http.StatusCreated,
		`{"id":"a1","learner_id":"l1","prompt_id":"p1","skill_type":"speaking","status":"pending","created_at":"2026-10-19T10:00:00Z"}`)

	att, err := c.CreateAttempt(context.Background(), attempt.NewAttempt{LearnerID: "l1", PromptID: "p1", SkillType: attempt.SkillSpeaking})
	require.NoError(t, err)
	assert.Equal(t, "a1", att.ID)
	assert.Equal(t, attempt.StatusPending, att.Status)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/attempts", rec.path)
	assert.Equal(t, "Bearer tok", rec.auth)
	assert.Equal(t, "l1", rec.body["learner_id"])
	assert.Equal(t, "speaking", rec.body["skill_type"])
}

func TestClient_SubmitAttempt(t *testing.T) {
	c, rec, _ := newTestClient(t, http.StatusOK,
		`{"id":"a1","status":"submitted","content":"http://media/a1.mp3","created_at":"2026-10-19T10:00:00Z"}`)

	att, err := c.SubmitAttempt(context.Background(), "a1", attempt.Submission{Content: "http://media/a1.mp3"})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusSubmitted, att.Status)
	assert.Equal(t, "/api/attempts/a1/submit", rec.path)
	assert.Equal(t, "http://media/a1.mp3", rec.body["content"])
}

func TestClient_GetAssignment(t *testing.T) {
	c, rec, _ := newTestClient(t, http.StatusOK,
		`{"id":"as1","learner_id":"l1","attempt_id":"a1","submission_status":"pending","prompt":{"id":"p1","content":"Describe your town."}}`)

	asgmt, err := c.GetAssignment(context.Background(), "as1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/assignments/as1", rec.path)
	assert.Equal(t, "a1", asgmt.AttemptID)
	assert.Equal(t, "p1", asgmt.Prompt.ID)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		call   func(c *Client) error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "attempt not found",
			status: http.StatusNotFound,
			body:   `{"error":"not found"}`,
			call: func(c *Client) error {
				_, err := c.GetAttempt(context.Background(), "nope")
				return err
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, attempt.ErrNotFound) },
		},
		{
			name:   "assignment not found",
			status: http.StatusNotFound,
			call: func(c *Client) error {
				_, err := c.GetAssignment(context.Background(), "nope")
				return err
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, attempt.ErrAssignmentNotFound) },
		},
		{
			name:   "conflict with id",
			status: http.StatusConflict,
			body:   `{"error":"exists","attempt_id":"a9"}`,
			call: func(c *Client) error {
				_, err := c.CreateAttempt(context.Background(), attempt.NewAttempt{LearnerID: "l1", PromptID: "p1"})
				return err
			},
			check: func(t *testing.T, err error) {
				cErr, ok := attempt.IsConflict(err)
				require.True(t, ok)
				assert.Equal(t, "a9", cErr.AttemptID)
			},
		},
		{
			name:   "conflict without body",
			status: http.StatusConflict,
			call: func(c *Client) error {
				_, err := c.CreateAttempt(context.Background(), attempt.NewAttempt{LearnerID: "l1", PromptID: "p1"})
				return err
			},
			check: func(t *testing.T, err error) {
				cErr, ok := attempt.IsConflict(err)
				require.True(t, ok)
				assert.Empty(t, cErr.AttemptID)
			},
		},
		{
			name:   "read-only",
			status: http.StatusLocked,
			body:   `{"error":"attempt is read-only"}`,
			call: func(c *Client) error {
				_, err := c.SubmitAttempt(context.Background(), "a1", attempt.Submission{Content: "x"})
				return err
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, attempt.ErrReadOnly) },
		},
		{
			name:   "validation",
			status: http.StatusBadRequest,
			body:   `{"content":"content is a required field"}`,
			call: func(c *Client) error {
				_, err := c.SubmitAttempt(context.Background(), "a1", attempt.Submission{})
				return err
			},
			check: func(t *testing.T, err error) {
				var vErr *core.ValidationError
				require.True(t, errors.As(err, &vErr))
				assert.Contains(t, err.Error(), "content is a required field")
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   `{"error":"upstream down"}`,
			call: func(c *Client) error {
				_, err := c.GetAttempt(context.Background(), "a1")
				return err
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
				assert.Equal(t, "upstream down", apiErr.Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestClient(t, tt.status, tt.body)
			tt.check(t, tt.call(c))
		})
	}
}

func TestClient_Cancelled(t *testing.T) {
	c, _, _ := newTestClient(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetAttempt(ctx, "a1")
	assert.ErrorIs(t, err, context.Canceled)
}
