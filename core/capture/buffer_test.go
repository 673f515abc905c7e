package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcat(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []Chunk
		want    string
		wantErr error
	}{
		{name: "no chunks", wantErr: ErrEmptyCapture},
		{name: "all empty", chunks: []Chunk{{Seq: 0}, {Seq: 1, Data: []byte{}}}, wantErr: ErrEmptyCapture},
		{name: "out of order", chunks: []Chunk{{Seq: 1, Data: []byte("b")}, {Seq: 0, Data: []byte("a")}}, wantErr: ErrOutOfOrder},
		{name: "duplicate seq", chunks: []Chunk{{Seq: 0, Data: []byte("a")}, {Seq: 0, Data: []byte("a")}}, wantErr: ErrOutOfOrder},
		{name: "ordered", chunks: []Chunk{{Seq: 0, Data: []byte("ab")}, {Seq: 1, Data: []byte("c")}, {Seq: 3, Data: []byte("d")}}, want: "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Concat(tt.chunks)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestHasAudio(t *testing.T) {
	header := streamingWAVHeader(16000, 1)
	withList := append([]byte{}, header[:36]...)
	withList = append(withList, "LIST"...)
	withList = append(withList, 3, 0, 0, 0, 'a', 'b', 'c', 0)
	withList = append(withList, header[36:]...)

	tests := []struct {
		name string
		mime string
		data []byte
		want bool
	}{
		{name: "nothing", mime: wavMimeType, want: false},
		{name: "header only", mime: wavMimeType, data: header, want: false},
		{name: "truncated header", mime: wavMimeType, data: header[:30], want: false},
		{name: "samples", mime: wavMimeType, data: append(append([]byte{}, header...), 0, 0, 0, 0), want: true},
		{name: "padded chunk before data", mime: wavMimeType, data: withList, want: false},
		{name: "padded chunk then samples", mime: wavMimeType, data: append(append([]byte{}, withList...), 1, 2), want: true},
		{name: "not riff", mime: wavMimeType, data: []byte("abcd"), want: true},
		{name: "other container", mime: "audio/webm", data: header, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAudio(tt.mime, tt.data))
		})
	}
}
