package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/services/metrics"
	"github.com/heluDuyne/lingolab/services/upload"
)

// maxUploadSize bounds a 2 minute recording with plenty of headroom.
const maxUploadSize = 32 << 20

type uploadAPI struct {
	store   *upload.DiskStore
	metrics *metrics.Metrics
}

func registerUploadAPI(g *echo.Group, jwt echo.MiddlewareFunc, store *upload.DiskStore, m *metrics.Metrics) {
	api := uploadAPI{store: store, metrics: m}
	g.POST("/uploads", api.uploadCreate, jwt)
}

func (api *uploadAPI) uploadCreate(ctx echo.Context) error {
	req := ctx.Request()
	req.Body = http.MaxBytesReader(ctx.Response(), req.Body, maxUploadSize)

	fh, err := ctx.FormFile(upload.FormField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: upload.FormField, Error: "a file is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	ref, size, err := api.store.Save(req.Context(), fh.Filename, fh.Header.Get(echo.HeaderContentType), file)
	if err != nil {
		return err
	}
	api.metrics.ObserveUpload(int(size))
	return ctx.JSON(http.StatusCreated, ref)
}
