package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// BytesPerSecond returns the raw stream rate for this encoding, or -1 when
// the format is unknown.
func (e EncodingInfo) BytesPerSecond() int {
	byteSize := e.Format.ByteSize()
	if byteSize <= 0 || e.SampleRate <= 0 {
		return -1
	}

	return e.SampleRate * byteSize
}

// Duration converts a played byte count into a playback offset. Unknown
// encodings report a zero offset rather than guessing.
func (e EncodingInfo) Duration(byteCount int) time.Duration {
	rate := e.BytesPerSecond()
	if rate <= 0 || byteCount <= 0 {
		return 0
	}

	return time.Duration(byteCount) * time.Second / time.Duration(rate)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
