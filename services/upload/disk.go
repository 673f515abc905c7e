package upload

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/submission"
)

var (
	ErrInvalidName     = errors.New("invalid file name")
	ErrUnsupportedType = errors.New("unsupported media type")

	unsafeChars = regexp.MustCompile(`[^\w.-]+`)

	extensions = map[string]string{
		"audio/mpeg": ".mp3",
		"audio/mp3":  ".mp3",
		"audio/wav":  ".wav",
		"audio/wave": ".wav",
	}
)

// DiskStore keeps uploaded media under a directory served at baseURL.
type DiskStore struct {
	dir     string
	baseURL string
	logger  core.Logger
}

var _ submission.Uploader = (*DiskStore)(nil)

func NewDiskStore(conf core.MediaConfig, logger core.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(conf.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media dir")
	}
	return &DiskStore{dir: conf.Dir, baseURL: conf.BaseURL, logger: logger}, nil
}

func (s *DiskStore) Dir() string { return s.dir }

// Save writes r under a unique name derived from name and returns its public reference.
func (s *DiskStore) Save(ctx context.Context, name, mimeType string, r io.Reader) (submission.Reference, int64, error) {
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))]
	if !ok {
		return submission.Reference{}, 0, errors.Wrap(ErrUnsupportedType, mimeType)
	}
	base := strings.TrimSuffix(path.Base(filepath.ToSlash(name)), path.Ext(name))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return submission.Reference{}, 0, ErrInvalidName
	}
	fileName := base + "-" + uuid.New().String()[:8] + ext

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return submission.Reference{}, 0, errors.Wrap(err, "creating media file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return submission.Reference{}, 0, errors.Wrap(err, "writing media file")
	}
	if n == 0 {
		return submission.Reference{}, 0, errors.New("empty upload")
	}
	if err = os.Rename(tmp.Name(), filepath.Join(s.dir, fileName)); err != nil {
		return submission.Reference{}, 0, errors.Wrap(err, "storing media file")
	}

	s.logger.Info("media stored", map[string]interface{}{"file": fileName, "bytes": n})
	return submission.Reference{URL: s.baseURL + "/" + fileName}, n, nil
}

// Upload stores an artifact directly, for offline use without a grading service.
func (s *DiskStore) Upload(ctx context.Context, up submission.Upload) (submission.Reference, error) {
	ref, _, err := s.Save(ctx, up.FileName, up.MimeType, bytes.NewReader(up.Data))
	return ref, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
