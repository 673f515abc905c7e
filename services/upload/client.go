package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/submission"
)

// FormField is the multipart field holding the file.
const FormField = "file"

// Client uploads artifacts to the grading service's upload endpoint.
type Client struct {
	url   string
	token string
	http  *rest.Client
}

var _ submission.Uploader = (*Client)(nil)

func NewClient(conf core.APIConfig) *Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:   conf.UploadURL,
		token: conf.Token,
		http:  &rest.Client{HTTPClient: &http.Client{Timeout: 2 * timeout}},
	}
}

func (c *Client) Upload(ctx context.Context, up submission.Upload) (submission.Reference, error) {
	body, contentType, err := multipartBody(up)
	if err != nil {
		return submission.Reference{}, err
	}

	req := rest.Request{
		Method:  rest.Post,
		BaseURL: c.url,
		Headers: map[string]string{
			"Accept":       "application/json",
			"Content-Type": contentType,
		},
		Body: body,
	}
	if c.token != "" {
		req.Headers["Authorization"] = "Bearer " + c.token
	}

	res, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return submission.Reference{}, ctxErr
		}
		return submission.Reference{}, errors.Wrap(err, "posting upload")
	}
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return submission.Reference{}, errors.Errorf("upload responded %d: %s", res.StatusCode, res.Body)
	}

	var ref submission.Reference
	if err = json.Unmarshal([]byte(res.Body), &ref); err != nil {
		return submission.Reference{}, errors.Wrap(err, "decoding upload response")
	}
	if ref.URL == "" {
		return submission.Reference{}, errors.New("upload response has no url")
	}
	return ref, nil
}

func multipartBody(up submission.Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if up.AttemptID != "" {
		if err := w.WriteField("attempt_id", up.AttemptID); err != nil {
			return nil, "", errors.Wrap(err, "writing attempt_id field")
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+FormField+`"; filename="`+up.FileName+`"`)
	h.Set("Content-Type", up.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", errors.Wrap(err, "creating file part")
	}
	if _, err = part.Write(up.Data); err != nil {
		return nil, "", errors.Wrap(err, "writing file part")
	}
	if err = w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "closing multipart body")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
