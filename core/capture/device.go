package capture

import (
	"context"
	"io"
)

// Stream is an open input stream. Close stops the source: reads then return
// what is still buffered followed by io.EOF.
type Stream interface {
	io.ReadCloser
	MimeType() string
}

// Device acquires input streams. A device may only have one open stream.
type Device interface {
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}
