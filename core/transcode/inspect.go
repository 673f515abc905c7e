package transcode

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
)

var ErrNotMP3 = errors.New("not an MPEG audio layer III stream")

var (
	mp3Rates = [4][3]int{
		{11025, 12000, 8000},  // MPEG 2.5
		{},                    // reserved
		{22050, 24000, 16000}, // MPEG 2
		{44100, 48000, 32000}, // MPEG 1
	}
	mp3BitratesV1 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mp3BitratesV2 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

type frameHeader struct {
	mpeg1      bool
	mono       bool
	bitrate    int // kbps
	sampleRate int
	length     int // bytes
	samples    int
	sideInfo   int
}

func parseFrameHeader(b []byte) (frameHeader, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return frameHeader{}, false
	}
	version := (b[1] >> 3) & 3
	layer := (b[1] >> 1) & 3
	brIdx := b[2] >> 4
	srIdx := (b[2] >> 2) & 3
	if version == 1 || layer != 1 || srIdx == 3 || brIdx == 0 || brIdx == 15 {
		return frameHeader{}, false
	}

	h := frameHeader{
		mpeg1:      version == 3,
		mono:       b[3]>>6 == 3,
		sampleRate: mp3Rates[version][srIdx],
	}
	pad := int((b[2] >> 1) & 1)
	if h.mpeg1 {
		h.bitrate = mp3BitratesV1[brIdx]
		h.samples = 1152
		h.length = 144*h.bitrate*1000/h.sampleRate + pad
		h.sideInfo = 32
		if h.mono {
			h.sideInfo = 17
		}
	} else {
		h.bitrate = mp3BitratesV2[brIdx]
		h.samples = 576
		h.length = 72*h.bitrate*1000/h.sampleRate + pad
		h.sideInfo = 17
		if h.mono {
			h.sideInfo = 9
		}
	}
	return h, true
}

// skipID3v2 returns the offset of the first byte after an ID3v2 tag.
func skipID3v2(data []byte) int {
	if len(data) < 10 || string(data[0:3]) != "ID3" {
		return 0
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	if data[5]&0x10 != 0 { // footer
		size += 10
	}
	return 10 + size
}

type infoTag struct {
	frames  int
	delay   int
	padding int
}

// parseInfoTag reads a Xing/Info tag and the LAME extension that follows it.
func parseInfoTag(frame []byte, h frameHeader) (infoTag, bool) {
	p := 4 + h.sideInfo
	if len(frame) < p+8 {
		return infoTag{}, false
	}
	if id := string(frame[p : p+4]); id != "Xing" && id != "Info" {
		return infoTag{}, false
	}
	flags := binary.BigEndian.Uint32(frame[p+4 : p+8])
	p += 8

	var tag infoTag
	if flags&0x1 != 0 && len(frame) >= p+4 {
		tag.frames = int(binary.BigEndian.Uint32(frame[p : p+4]))
		p += 4
	}
	if flags&0x2 != 0 {
		p += 4
	}
	if flags&0x4 != 0 {
		p += 100
	}
	if flags&0x8 != 0 {
		p += 4
	}
	if len(frame) >= p+24 {
		ext := frame[p+21 : p+24]
		tag.delay = int(ext[0])<<4 | int(ext[1])>>4
		tag.padding = int(ext[1]&0x0F)<<8 | int(ext[2])
	}
	return tag, true
}

// Info describes an MP3 stream.
type Info struct {
	SampleRate      int
	Mono            bool
	Bitrate         int // kbps of the first audio frame
	CBR             bool
	Frames          int // audio frames, without the Info tag frame
	SamplesPerFrame int
	HasInfoTag      bool
	EncoderDelay    int
	Padding         int
	Samples         int // playable samples per channel
	Duration        time.Duration
	Decoded         PCM
}

// Inspect walks the frames of data, reads the Info tag if any and decodes the
// whole stream to check it is playable.
func Inspect(data []byte) (Info, error) {
	var info Info
	pos := skipID3v2(data)
	first := true
	for pos+4 <= len(data) {
		h, ok := parseFrameHeader(data[pos:])
		if !ok || h.length <= 0 {
			if info.Frames > 0 {
				break // trailing tags
			}
			pos++
			continue
		}
		end := pos + h.length
		if end > len(data) {
			end = len(data)
		}
		if first {
			first = false
			info.SampleRate = h.sampleRate
			info.Mono = h.mono
			info.SamplesPerFrame = h.samples
			info.CBR = true
			if tag, ok := parseInfoTag(data[pos:end], h); ok {
				info.HasInfoTag = true
				info.EncoderDelay = tag.delay
				info.Padding = tag.padding
				pos = end
				continue
			}
		}
		if info.Bitrate == 0 {
			info.Bitrate = h.bitrate
		} else if h.bitrate != info.Bitrate {
			info.CBR = false
		}
		info.Frames++
		pos = end
	}
	if info.Frames == 0 {
		return Info{}, ErrNotMP3
	}

	info.Samples = info.Frames*info.SamplesPerFrame - info.EncoderDelay - info.Padding
	if info.Samples < 0 {
		info.Samples = 0
	}
	info.Duration = time.Duration(info.Samples) * time.Second / time.Duration(info.SampleRate)

	pcm, err := DecodeMP3(data)
	if err != nil {
		return Info{}, err
	}
	info.Decoded = pcm
	return info, nil
}

// DecodeMP3 decodes an MP3 stream to mono PCM (left channel of the decoder output).
func DecodeMP3(data []byte) (PCM, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, errors.Wrap(ErrNotMP3, err.Error())
	}
	raw, err := ioutil.ReadAll(d)
	if err != nil {
		return PCM{}, errors.Wrap(err, "decoding mp3")
	}

	// the decoder always outputs 16-bit little endian stereo
	frames := len(raw) / 4
	mono := make([]float64, frames)
	for i := range mono {
		mono[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*4:]))) / 32768
	}
	return PCM{SampleRate: d.SampleRate(), Channels: [][]float64{mono}}, nil
}
