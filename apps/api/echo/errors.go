package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/services/upload"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		if cErr, ok := attempt.IsConflict(err); ok {
			respond(ctx, http.StatusConflict, echo.Map{"error": cErr.Error(), "attempt_id": cErr.AttemptID})
			return
		}

		switch origErr := errors.Cause(err); {
		case errors.Is(err, attempt.ErrNotFound), errors.Is(err, attempt.ErrAssignmentNotFound):
			code, message = http.StatusNotFound, origErr.Error()
		case errors.Is(err, attempt.ErrReadOnly):
			code, message = http.StatusLocked, origErr.Error()
		case errors.Is(err, attempt.ErrNotSubmitted):
			code, message = http.StatusConflict, origErr.Error()
		case errors.Is(err, upload.ErrUnsupportedType):
			code, message = http.StatusUnsupportedMediaType, err.Error()
		case errors.Is(err, upload.ErrInvalidName):
			code, message = http.StatusBadRequest, origErr.Error()
		default:
			code, message = classify(err, origErr, ctx, logger, signalShutdown)
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}
		respond(ctx, code, message)
	}
}

func classify(err, origErr error, ctx echo.Context, logger core.Logger, signalShutdown func()) (int, interface{}) {
	switch e := origErr.(type) {
	case *echo.HTTPError:
		if e == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, e.Message
		}
		if herr, ok := e.Internal.(*echo.HTTPError); ok {
			e = herr
		}
		return e.Code, e.Message
	case validator.ValidationErrors:
		return http.StatusBadRequest, core.TranslateValidationErrors(e, core.Translator)
	case *core.ValidationError:
		if e.Fields != nil {
			fldErrs := make(map[string]string, len(e.Fields))
			for _, fErr := range e.Fields {
				fldErrs[fErr.Field] = fErr.Error
			}
			return http.StatusBadRequest, fldErrs
		}
		return http.StatusBadRequest, e.Error()
	case *core.ArgumentError:
		return http.StatusBadRequest, e.Error()
	}

	// any other error is a server error
	msg := http.StatusText(http.StatusInternalServerError)
	args := []interface{}{errors.Wrap(err, msg)}
	if claims, cErr := getContextClaims(ctx); cErr == nil {
		args = append(args, claims.Person())
	}
	logger.Error(msg, args...)

	// shutting down...
	if core.IsShutdown(err) {
		signalShutdown()
	}
	return http.StatusInternalServerError, msg
}

func respond(ctx echo.Context, code int, message interface{}) {
	if ctx.Response().Committed {
		return
	}
	var err error
	if ctx.Request().Method == http.MethodHead { // Issue #608
		err = ctx.NoContent(code)
	} else {
		err = ctx.JSON(code, message)
	}
	if err != nil {
		ctx.Echo().Logger.Error(err)
	}
}
