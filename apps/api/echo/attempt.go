package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/services/metrics"
)

type attemptAPI struct {
	registry *attempt.Registry
	metrics  *metrics.Metrics
}

func registerAttemptAPI(g *echo.Group, jwt echo.MiddlewareFunc, reg *attempt.Registry, m *metrics.Metrics) {
	api := attemptAPI{registry: reg, metrics: m}

	ag := g.Group("/attempts", jwt)
	ag.POST("", api.attemptCreate)
	ag.GET("", api.attemptQuery)
	ag.GET("/:id", api.attemptRetrieve)
	ag.GET("/:id/status", api.attemptStatus)
	ag.POST("/:id/submit", api.attemptSubmit)
	ag.POST("/:id/score", api.attemptScore, teacherMiddleware)

	sg := g.Group("/assignments", jwt)
	sg.POST("", api.assignmentCreate, teacherMiddleware)
	sg.GET("/:id", api.assignmentRetrieve)
}

type newAssignment struct {
	LearnerID string         `json:"learner_id" validate:"required,alphanum_"`
	Prompt    attempt.Prompt `json:"prompt"`
}

// Handlers

func (api *attemptAPI) attemptCreate(ctx echo.Context) error {
	data := new(attempt.NewAttempt)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	// learners always create their own attempts
	if !claims.IsTeacher() || data.LearnerID == "" {
		data.LearnerID = claims.Subject
	}

	att, err := api.registry.CreateAttempt(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	api.metrics.AttemptsCreated.Inc()
	return ctx.JSON(http.StatusCreated, att)
}

func (api *attemptAPI) attemptQuery(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := bindAttemptFilter(ctx)
	if !claims.IsTeacher() {
		filter.LearnerID = claims.Subject
	}

	atts, err := api.registry.FilterAttempts(ctx.Request().Context(), filter, bindOrdering(ctx)...)
	if err != nil {
		return err
	}
	if atts == nil {
		atts = []attempt.Attempt{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

// getAttempt fetches the :id attempt, hiding other learners' attempts.
func (api *attemptAPI) getAttempt(ctx echo.Context) (attempt.Attempt, error) {
	att, err := api.registry.GetAttempt(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return attempt.Attempt{}, err
	}
	if err = canAccess(ctx, att.LearnerID); err != nil {
		return attempt.Attempt{}, err
	}
	return att, nil
}

func (api *attemptAPI) attemptRetrieve(ctx echo.Context) error {
	att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptAPI) attemptStatus(ctx echo.Context) error {
	att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, attempt.NewStatusView(att))
}

func (api *attemptAPI) attemptSubmit(ctx echo.Context) error {
	att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	data := new(attempt.Submission)
	if err = ctx.Bind(data); err != nil {
		return err
	}

	att, err = api.registry.SubmitAttempt(ctx.Request().Context(), att.ID, *data)
	if err != nil {
		return err
	}
	api.metrics.AttemptsSubmitted.Inc()
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptAPI) attemptScore(ctx echo.Context) error {
	data := new(attempt.Grade)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	att, err := api.registry.ScoreAttempt(ctx.Request().Context(), ctx.Param("id"), *data)
	if err != nil {
		return err
	}
	api.metrics.AttemptsScored.Inc()
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptAPI) assignmentCreate(ctx echo.Context) error {
	data := new(newAssignment)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := ctx.Validate(data); err != nil {
		return err
	}

	asgmt, err := api.registry.CreateAssignment(ctx.Request().Context(), data.LearnerID, data.Prompt)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, asgmt)
}

func (api *attemptAPI) assignmentRetrieve(ctx echo.Context) error {
	asgmt, err := api.registry.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err = canAccess(ctx, asgmt.LearnerID); err != nil {
		return errors.Wrap(attempt.ErrAssignmentNotFound, "assignment of another learner")
	}
	return ctx.JSON(http.StatusOK, asgmt)
}
