package transcode

import "github.com/pkg/errors"

// DownmixPolicy selects how multi-channel sources become mono.
type DownmixPolicy string

const (
	DownmixFirst   DownmixPolicy = "first"
	DownmixAverage DownmixPolicy = "average"
)

func ParseDownmixPolicy(s string) (DownmixPolicy, error) {
	switch p := DownmixPolicy(s); p {
	case "", DownmixFirst:
		return DownmixFirst, nil
	case DownmixAverage:
		return DownmixAverage, nil
	default:
		return "", errors.Errorf("unknown downmix policy %q", s)
	}
}

// Downmix returns a new mono channel from pcm.
func Downmix(pcm PCM, policy DownmixPolicy) []float64 {
	if len(pcm.Channels) == 0 {
		return nil
	}
	mono := make([]float64, pcm.Frames())
	if policy != DownmixAverage || len(pcm.Channels) == 1 {
		copy(mono, pcm.Channels[0])
		return mono
	}

	n := float64(len(pcm.Channels))
	for i := range mono {
		var sum float64
		for _, ch := range pcm.Channels {
			sum += ch[i]
		}
		mono[i] = sum / n
	}
	return mono
}

// Quantize clamps v to [-1, 1] and scales it to a signed 16-bit sample.
func Quantize(v float64) int16 {
	switch {
	case v != v: // NaN
		return 0
	case v < -1:
		v = -1
	case v > 1:
		v = 1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

func QuantizeAll(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = Quantize(v)
	}
	return out
}
