package echoapi_test

import (
	"bytes"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/heluDuyne/lingolab/apps/api/echo"
	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/services/upload"
	"github.com/heluDuyne/lingolab/tests"
)

func Test_attemptAPI_auth(t *testing.T) {
	a := setup(t)
	att := testutil.CreateAttempt(t, a.reg, "learner1", "prompt1", attempt.StatusPending)
	other := a.token(t, "learner2", RoleLearner)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/api/attempts/" + att.ID,
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, errMissingToken),
		},
		{
			name:     "invalid token",
			method:   http.MethodGet,
			path:     "/api/attempts/" + att.ID,
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "other learner's attempt",
			method:   http.MethodGet,
			path:     "/api/attempts/" + att.ID,
			token:    other,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "learner cannot score",
			method:   http.MethodPost,
			path:     "/api/attempts/" + att.ID + "/score",
			body:     []byte(`{"score": 90}`),
			token:    a.token(t, "learner1", RoleLearner),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "learner cannot assign",
			method:   http.MethodPost,
			path:     "/api/assignments",
			body:     []byte(`{"learner_id": "learner1", "prompt": {"id": "p2"}}`),
			token:    a.token(t, "learner1", RoleLearner),
			wantCode: http.StatusForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_attemptAPI_lifecycle(t *testing.T) {
	a := setup(t)
	learner := a.token(t, "learner1", RoleLearner)
	teacher := a.token(t, "teacher1", RoleTeacher)

	// create
	rec := a.do(newAuthRequest(http.MethodPost, "/api/attempts", learner, []byte(`{"prompt_id": "prompt1", "learner_id": "someone-else"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var att attempt.Attempt
	decode(t, rec, &att)
	assert.Equal(t, "learner1", att.LearnerID)
	assert.Equal(t, attempt.SkillSpeaking, att.SkillType)
	assert.Equal(t, attempt.StatusPending, att.Status)

	// a second create conflicts and names the live attempt
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts", learner, []byte(`{"prompt_id": "prompt1"}`)))
	checkCodeAndData(t, httpTest{wantCode: http.StatusConflict}, rec)
	var conflict struct {
		AttemptID string `json:"attempt_id"`
	}
	decode(t, rec, &conflict)
	assert.Equal(t, att.ID, conflict.AttemptID)

	// scoring before submission
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts/"+att.ID+"/score", teacher, []byte(`{"score": 70}`)))
	checkCodeAndData(t, httpTest{wantCode: http.StatusConflict}, rec)

	// blank submission
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts/"+att.ID+"/submit", learner, []byte(`{"content": "  "}`)))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest}, rec)

	// submit
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts/"+att.ID+"/submit", learner, []byte(`{"content": "http://localhost:8000/media/a.mp3"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &att)
	assert.Equal(t, attempt.StatusSubmitted, att.Status)
	require.Len(t, a.mailSvc.Sent(), 1)
	assert.Contains(t, a.mailSvc.Sent()[0].TextContent, att.ID)

	// read-only afterwards
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts/"+att.ID+"/submit", learner, []byte(`{"content": "again"}`)))
	checkCodeAndData(t, httpTest{wantCode: http.StatusLocked, wantData: marshalObj(t, httpErr{Error: attempt.ErrReadOnly.Error()})}, rec)

	// score
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts/"+att.ID+"/score", teacher, []byte(`{"score": 101}`)))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest}, rec)
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts/"+att.ID+"/score", teacher, []byte(`{"score": 85.5, "feedback": "Good pace."}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// status view
	rec = a.do(newAuthRequest(http.MethodGet, "/api/attempts/"+att.ID+"/status", learner))
	require.Equal(t, http.StatusOK, rec.Code)
	var view attempt.StatusView
	decode(t, rec, &view)
	assert.Equal(t, attempt.StatusScored, view.Status)
	assert.True(t, view.ReadOnly)
	require.NotNil(t, view.Score)
	assert.Equal(t, 85.5, *view.Score)

	// a new attempt may start once the previous one is terminal
	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts", learner, []byte(`{"prompt_id": "prompt1"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func Test_attemptAPI_query(t *testing.T) {
	a := setup(t)
	testutil.CreateAttempt(t, a.reg, "learner1", "prompt1", attempt.StatusScored)
	testutil.CreateAttempt(t, a.reg, "learner1", "prompt2", attempt.StatusPending)
	testutil.CreateAttempt(t, a.reg, "learner2", "prompt1", attempt.StatusSubmitted)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "learner sees own", path: "/api/attempts", token: a.token(t, "learner1", RoleLearner), want: 2},
		{name: "learner filter ignored", path: "/api/attempts?learner_id=learner2", token: a.token(t, "learner1", RoleLearner), want: 2},
		{name: "teacher sees all", path: "/api/attempts", token: a.token(t, "teacher1", RoleTeacher), want: 3},
		{name: "teacher by status", path: "/api/attempts?status=submitted,scored", token: a.token(t, "teacher1", RoleTeacher), want: 2},
		{name: "teacher by prompt", path: "/api/attempts?prompt_id=prompt1&ordering=-created_at", token: a.token(t, "teacher1", RoleTeacher), want: 2},
		{name: "none", path: "/api/attempts?learner_id=nobody", token: a.token(t, "teacher1", RoleTeacher), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(newAuthRequest(http.MethodGet, tt.path, tt.token))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var atts []attempt.Attempt
			decode(t, rec, &atts)
			assert.Len(t, atts, tt.want)
		})
	}
}

func Test_attemptAPI_assignment(t *testing.T) {
	a := setup(t)
	learner := a.token(t, "learner1", RoleLearner)
	teacher := a.token(t, "teacher1", RoleTeacher)

	rec := a.do(newAuthRequest(http.MethodPost, "/api/assignments", teacher,
		[]byte(`{"learner_id": "learner1", "prompt": {"id": "prompt9", "content": "Talk about your weekend."}}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var asgmt attempt.Assignment
	decode(t, rec, &asgmt)
	assert.Empty(t, asgmt.AttemptID)

	rec = a.do(newAuthRequest(http.MethodPost, "/api/attempts", learner, marshalObj(t, attempt.NewAttempt{AssignmentID: asgmt.ID, PromptID: "prompt9"})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var att attempt.Attempt
	decode(t, rec, &att)

	rec = a.do(newAuthRequest(http.MethodGet, "/api/assignments/"+asgmt.ID, learner))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &asgmt)
	assert.Equal(t, att.ID, asgmt.AttemptID)
	assert.Equal(t, attempt.StatusPending, asgmt.SubmissionStatus)
	assert.Equal(t, "Talk about your weekend.", asgmt.Prompt.Content)

	rec = a.do(newAuthRequest(http.MethodGet, "/api/assignments/"+asgmt.ID, a.token(t, "learner2", RoleLearner)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(newAuthRequest(http.MethodGet, "/api/assignments/nope", learner))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, fileName, mimeType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+upload.FormField+`"; filename="`+fileName+`"`)
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func Test_uploadAPI(t *testing.T) {
	a := setup(t)
	learner := a.token(t, "learner1", RoleLearner)

	body, contentType := multipartUpload(t, "a1.mp3", "audio/mpeg", "ID3data")
	req := newAuthRequest(http.MethodPost, "/api/uploads", learner, body.Bytes())
	req.Header.Set("Content-Type", contentType)
	rec := a.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ref struct {
		URL string `json:"url"`
	}
	decode(t, rec, &ref)
	require.True(t, strings.HasPrefix(ref.URL, a.conf.Media.BaseURL+"/a1-"), ref.URL)

	// the stored file is served under /media
	rec = a.do(newAuthRequest(http.MethodGet, "/media/"+strings.TrimPrefix(ref.URL, a.conf.Media.BaseURL+"/"), ""))
	require.Equal(t, http.StatusOK, rec.Code)
	data, err := ioutil.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "ID3data", string(data))

	body, contentType = multipartUpload(t, "a1.ogg", "audio/ogg", "OggS")
	req = newAuthRequest(http.MethodPost, "/api/uploads", learner, body.Bytes())
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusUnsupportedMediaType, a.do(req).Code)

	req = newAuthRequest(http.MethodPost, "/api/uploads", learner, []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, a.do(req).Code)

	body, contentType = multipartUpload(t, "a1.mp3", "audio/mpeg", "ID3data")
	req = newAuthRequest(http.MethodPost, "/api/uploads", "", body.Bytes())
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusUnauthorized, a.do(req).Code)
}

func Test_metrics(t *testing.T) {
	a := setup(t)
	learner := a.token(t, "learner1", RoleLearner)
	a.do(newAuthRequest(http.MethodPost, "/api/attempts", learner, []byte(`{"prompt_id": "prompt1"}`)))

	rec := a.do(newAuthRequest(http.MethodGet, "/metrics", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lingolab_attempts_created_total 1")
	assert.Contains(t, rec.Body.String(), `lingolab_http_requests_total{method="POST",route="/api/attempts",status="201"} 1`)
}
