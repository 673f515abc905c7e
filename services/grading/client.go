package grading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
)

// Client talks to the grading service's Attempt and Assignment APIs.
type Client struct {
	baseURL string
	token   string
	http    *rest.Client
	logger  core.Logger
}

var (
	_ attempt.Repository           = (*Client)(nil)
	_ attempt.AssignmentRepository = (*Client)(nil)
)

// APIError is any unexpected response of the grading service.
type APIError struct {
	StatusCode int
	Message    string
}

func (err *APIError) Error() string {
	return "grading service responded " + http.StatusText(err.StatusCode) + ": " + err.Message
}

// errorBody is what the service sends along with a non-2xx status.
type errorBody struct {
	Error     string `json:"error"`
	AttemptID string `json:"attempt_id"`
}

func NewClient(conf core.APIConfig, logger core.Logger) *Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: conf.BaseURL,
		token:   conf.Token,
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		logger:  logger,
	}
}

func (c *Client) request(method rest.Method, path string, body interface{}) (rest.Request, error) {
	req := rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{"Accept": "application/json"},
	}
	if c.token != "" {
		req.Headers["Authorization"] = "Bearer " + c.token
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return req, errors.Wrap(err, "encoding request")
		}
		req.Body = data
		req.Headers["Content-Type"] = "application/json"
	}
	return req, nil
}

// do sends the request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, req rest.Request, out interface{}, notFound error) error {
	res, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrapf(err, "%s %s", req.Method, req.BaseURL)
	}
	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
		if out == nil {
			return nil
		}
		return errors.Wrap(json.Unmarshal([]byte(res.Body), out), "decoding response")
	}

	var eb errorBody
	_ = json.Unmarshal([]byte(res.Body), &eb)
	switch res.StatusCode {
	case http.StatusNotFound:
		return notFound
	case http.StatusConflict:
		return &attempt.ConflictError{AttemptID: eb.AttemptID}
	case http.StatusLocked:
		return attempt.ErrReadOnly
	case http.StatusBadRequest:
		return core.NewValidationError(validationMessage(res.Body, eb))
	}
	apiErr := &APIError{StatusCode: res.StatusCode, Message: eb.Error}
	if apiErr.Message == "" {
		apiErr.Message = res.Body
	}
	c.logger.Warn("unexpected grading service response", apiErr, map[string]interface{}{
		"method": req.Method,
		"url":    req.BaseURL,
	})
	return apiErr
}

// validationMessage flattens either {"error": msg} or a {field: msg} map.
func validationMessage(body string, eb errorBody) error {
	if eb.Error != "" {
		return errors.New(eb.Error)
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(body), &fields); err == nil {
		for field, msg := range fields {
			return errors.New(field + ": " + msg)
		}
	}
	return errors.New("invalid request")
}

func (c *Client) CreateAttempt(ctx context.Context, na attempt.NewAttempt) (attempt.Attempt, error) {
	req, err := c.request(rest.Post, "/api/attempts", na)
	if err != nil {
		return attempt.Attempt{}, err
	}
	var att attempt.Attempt
	if err = c.do(ctx, req, &att, attempt.ErrAssignmentNotFound); err != nil {
		return attempt.Attempt{}, err
	}
	return att, nil
}

func (c *Client) GetAttempt(ctx context.Context, id string) (attempt.Attempt, error) {
	req, err := c.request(rest.Get, "/api/attempts/"+url.PathEscape(id), nil)
	if err != nil {
		return attempt.Attempt{}, err
	}
	var att attempt.Attempt
	if err = c.do(ctx, req, &att, attempt.ErrNotFound); err != nil {
		return attempt.Attempt{}, err
	}
	return att, nil
}

func (c *Client) SubmitAttempt(ctx context.Context, id string, sub attempt.Submission) (attempt.Attempt, error) {
	req, err := c.request(rest.Post, "/api/attempts/"+url.PathEscape(id)+"/submit", sub)
	if err != nil {
		return attempt.Attempt{}, err
	}
	var att attempt.Attempt
	if err = c.do(ctx, req, &att, attempt.ErrNotFound); err != nil {
		return attempt.Attempt{}, err
	}
	return att, nil
}

func (c *Client) GetAssignment(ctx context.Context, id string) (attempt.Assignment, error) {
	req, err := c.request(rest.Get, "/api/assignments/"+url.PathEscape(id), nil)
	if err != nil {
		return attempt.Assignment{}, err
	}
	var asgmt attempt.Assignment
	if err = c.do(ctx, req, &asgmt, attempt.ErrAssignmentNotFound); err != nil {
		return attempt.Assignment{}, err
	}
	return asgmt, nil
}
