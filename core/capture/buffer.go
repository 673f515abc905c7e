package capture

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Concat joins the chunks of a finished capture into one blob.
// Chunks must be in strictly increasing Seq order.
func Concat(chunks []Chunk) ([]byte, error) {
	size := 0
	for i, c := range chunks {
		if i > 0 && c.Seq <= chunks[i-1].Seq {
			return nil, errors.Wrapf(ErrOutOfOrder, "chunk %d after %d", c.Seq, chunks[i-1].Seq)
		}
		size += len(c.Data)
	}
	if size == 0 {
		return nil, ErrEmptyCapture
	}

	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c.Data...)
	}
	return data, nil
}

// HasAudio reports whether a finished capture holds sample bytes. A RIFF/WAVE
// blob with nothing past its data chunk header is a header-only capture.
// Data in any other container is taken as it is.
func HasAudio(mimeType string, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if mimeType != wavMimeType || len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return true
	}
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(data[pos+4:]))
		if id == "data" {
			return len(data) > pos+8
		}
		next := int64(pos) + 8 + size + size%2
		if next > int64(len(data)) {
			return false
		}
		pos = int(next)
	}
	return false
}
