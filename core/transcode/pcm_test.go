package transcode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{in: 0, want: 0},
		{in: 1, want: 32767},
		{in: -1, want: -32768},
		{in: 0.5, want: 16383},
		{in: -0.5, want: -16384},
		{in: 1.7, want: 32767},
		{in: -3, want: -32768},
		{in: math.Inf(1), want: 32767},
		{in: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quantize(tt.in), "Quantize(%v)", tt.in)
	}
}

func TestDownmix(t *testing.T) {
	stereo := PCM{SampleRate: 8000, Channels: [][]float64{{1, 0.5}, {0, -0.5}}}

	first := Downmix(stereo, DownmixFirst)
	assert.Equal(t, []float64{1, 0.5}, first)
	first[0] = 0
	assert.Equal(t, 1.0, stereo.Channels[0][0], "downmix must not alias its input")

	assert.Equal(t, []float64{0.5, 0}, Downmix(stereo, DownmixAverage))
	assert.Nil(t, Downmix(PCM{}, DownmixFirst))
}

func TestParseDownmixPolicy(t *testing.T) {
	p, err := ParseDownmixPolicy("")
	assert.NoError(t, err)
	assert.Equal(t, DownmixFirst, p)

	p, err = ParseDownmixPolicy("average")
	assert.NoError(t, err)
	assert.Equal(t, DownmixAverage, p)

	_, err = ParseDownmixPolicy("loudest")
	assert.Error(t, err)
}
