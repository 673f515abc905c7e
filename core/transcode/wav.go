package transcode

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// WAV format tags
const (
	formatPCM        = 0x0001
	formatIEEEFloat  = 0x0003
	formatExtensible = 0xFFFE

	unknownSize = 0xFFFFFFFF
)

var (
	ErrNotWAV            = errors.New("not a RIFF/WAVE container")
	ErrUnsupportedFormat = errors.New("unsupported WAV sample format")
	ErrNoSamples         = errors.New("no audio samples")
)

// PCM holds decoded samples in [-1, 1], one slice per channel.
type PCM struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of samples per channel.
func (p PCM) Frames() int {
	if len(p.Channels) == 0 {
		return 0
	}
	return len(p.Channels[0])
}

type wavFormat struct {
	tag           uint16
	channels      int
	sampleRate    int
	blockAlign    int
	bitsPerSample int
}

// DecodeWAV decodes a RIFF/WAVE container holding integer PCM (8, 16, 24, 32 bits)
// or IEEE float (32, 64 bits) samples. Sizes left unknown by a streaming writer
// (0 or 0xFFFFFFFF) are read up to the end of the data.
func DecodeWAV(data []byte) (PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, ErrNotWAV
	}

	var (
		format  *wavFormat
		samples []byte
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := int64(body) + size
		if size == unknownSize || end > int64(len(data)) || (size == 0 && id == "data") {
			end = int64(len(data))
		}

		switch id {
		case "fmt ":
			f, err := parseFormat(data[body:end])
			if err != nil {
				return PCM{}, err
			}
			format = &f
		case "data":
			if format == nil {
				return PCM{}, errors.Wrap(ErrNotWAV, "data chunk before fmt chunk")
			}
			samples = data[body:end]
		}
		if samples != nil {
			break
		}

		pos = int(end)
		if pos%2 == 1 { // chunks are word aligned
			pos++
		}
	}
	if format == nil {
		return PCM{}, errors.Wrap(ErrNotWAV, "missing fmt chunk")
	}
	if samples == nil {
		return PCM{}, errors.Wrap(ErrNotWAV, "missing data chunk")
	}
	return decodeSamples(*format, samples)
}

func parseFormat(b []byte) (wavFormat, error) {
	if len(b) < 16 {
		return wavFormat{}, errors.Wrap(ErrNotWAV, "fmt chunk too short")
	}
	f := wavFormat{
		tag:           binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		blockAlign:    int(binary.LittleEndian.Uint16(b[12:14])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if f.tag == formatExtensible {
		if len(b) < 26 {
			return wavFormat{}, errors.Wrap(ErrNotWAV, "extensible fmt chunk too short")
		}
		// the sub-format GUID starts with the actual format tag
		f.tag = binary.LittleEndian.Uint16(b[24:26])
	}
	if f.channels <= 0 || f.sampleRate <= 0 {
		return wavFormat{}, errors.Wrapf(ErrUnsupportedFormat, "%d channels at %d Hz", f.channels, f.sampleRate)
	}
	bytesPerSample := (f.bitsPerSample + 7) / 8
	if f.blockAlign < f.channels*bytesPerSample {
		f.blockAlign = f.channels * bytesPerSample
	}

	switch {
	case f.tag == formatPCM && (f.bitsPerSample == 8 || f.bitsPerSample == 16 || f.bitsPerSample == 24 || f.bitsPerSample == 32):
	case f.tag == formatIEEEFloat && (f.bitsPerSample == 32 || f.bitsPerSample == 64):
	default:
		return wavFormat{}, errors.Wrapf(ErrUnsupportedFormat, "format %#04x with %d bits", f.tag, f.bitsPerSample)
	}
	return f, nil
}

func decodeSamples(f wavFormat, b []byte) (PCM, error) {
	frames := len(b) / f.blockAlign
	if frames == 0 {
		return PCM{}, ErrNoSamples
	}
	width := (f.bitsPerSample + 7) / 8

	pcm := PCM{SampleRate: f.sampleRate, Channels: make([][]float64, f.channels)}
	for ch := range pcm.Channels {
		pcm.Channels[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		frame := b[i*f.blockAlign:]
		for ch := 0; ch < f.channels; ch++ {
			s := frame[ch*width : (ch+1)*width]
			pcm.Channels[ch][i] = sampleValue(f, s)
		}
	}
	return pcm, nil
}

func sampleValue(f wavFormat, s []byte) float64 {
	if f.tag == formatIEEEFloat {
		if f.bitsPerSample == 64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(s))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(s)))
	}
	switch f.bitsPerSample {
	case 8: // unsigned
		return (float64(s[0]) - 128) / 128
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(s))) / 32768
	case 24:
		v := int32(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16)
		if v&0x800000 != 0 {
			v -= 1 << 24
		}
		return float64(v) / (1 << 23)
	default:
		return float64(int32(binary.LittleEndian.Uint32(s))) / (1 << 31)
	}
}

type SampleFormat int

const (
	SampleInt16 SampleFormat = iota
	SampleFloat32
)

// EncodeWAV writes pcm as a WAV container. Channels must have equal lengths.
func EncodeWAV(pcm PCM, sf SampleFormat) ([]byte, error) {
	channels := len(pcm.Channels)
	if channels == 0 || pcm.Frames() == 0 {
		return nil, ErrNoSamples
	}
	if pcm.SampleRate <= 0 {
		return nil, errors.Errorf("sample rate must be positive, got %d", pcm.SampleRate)
	}
	for _, c := range pcm.Channels {
		if len(c) != pcm.Frames() {
			return nil, errors.New("channels have different lengths")
		}
	}

	tag, width := uint16(formatPCM), 2
	if sf == SampleFloat32 {
		tag, width = formatIEEEFloat, 4
	}
	dataSize := pcm.Frames() * channels * width

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	for _, field := range []interface{}{
		uint32(16),
		tag,
		uint16(channels),
		uint32(pcm.SampleRate),
		uint32(pcm.SampleRate * channels * width),
		uint16(channels * width),
		uint16(width * 8),
	} {
		_ = binary.Write(buf, binary.LittleEndian, field)
	}
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	sample := make([]byte, width)
	for i := 0; i < pcm.Frames(); i++ {
		for ch := 0; ch < channels; ch++ {
			v := pcm.Channels[ch][i]
			if sf == SampleFloat32 {
				binary.LittleEndian.PutUint32(sample, math.Float32bits(float32(v)))
			} else {
				binary.LittleEndian.PutUint16(sample, uint16(Quantize(v)))
			}
			buf.Write(sample)
		}
	}
	return buf.Bytes(), nil
}
