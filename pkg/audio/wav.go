package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/mjibson/go-dsp/wav"
)

// wavHeaderSize is the size of the canonical RIFF/WAVE header go-dsp reads.
const wavHeaderSize = 44

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

func decodeWAV(data []byte, policy ChannelPolicy) (*Clip, error) {
	if len(data) < wavHeaderSize {
		return nil, decodeErr(FormatWAV, ReasonTruncated, io.ErrUnexpectedEOF)
	}
	w, err := newWAVReader(data)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, decodeErr(FormatWAV, ReasonTruncated, err)
		}
		return nil, decodeErr(FormatWAV, ReasonCorrupt, err)
	}
	channels := int(w.NumChannels)
	if channels <= 0 || w.SampleRate == 0 {
		return nil, decodeErr(FormatWAV, ReasonCorrupt, errors.New("zero channels or sample rate"))
	}
	if !wavSampleTypeSupported(w.Header) {
		return nil, decodeErr(FormatWAV, ReasonUnsupported,
			fmt.Errorf("format %d with %d bits per sample", w.AudioFormat, w.BitsPerSample))
	}
	if w.Samples == 0 {
		return nil, decodeErr(FormatWAV, ReasonEmpty, nil)
	}

	raw, err := w.ReadSamples(w.Samples)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, decodeErr(FormatWAV, ReasonTruncated, err)
		}
		return nil, decodeErr(FormatWAV, ReasonCorrupt, err)
	}
	interleaved, err := wavToFloat(raw)
	if err != nil {
		return nil, decodeErr(FormatWAV, ReasonUnsupported, err)
	}
	return &Clip{
		Samples:        ToMono(interleaved, channels, policy),
		SampleRate:     int(w.SampleRate),
		SourceChannels: channels,
		Format:         FormatWAV,
	}, nil
}

// newWAVReader wraps wav.New, which divides by the header's bit depth and
// panics when it is zero.
func newWAVReader(data []byte) (w *wav.Wav, err error) {
	defer func() {
		if r := recover(); r != nil {
			w, err = nil, fmt.Errorf("invalid header: %v", r)
		}
	}()
	return wav.New(bytes.NewReader(data))
}

// wavSampleTypeSupported reports whether go-dsp can read h's samples:
// 8- or 16-bit PCM, or 32-bit IEEE float.
func wavSampleTypeSupported(h wav.Header) bool {
	switch h.AudioFormat {
	case wavFormatPCM:
		return h.BitsPerSample == 8 || h.BitsPerSample == 16
	case wavFormatFloat:
		return h.BitsPerSample == 32
	}
	return false
}

// wavToFloat scales go-dsp's raw sample slice to [-1, 1]. go-dsp's own
// ReadFloats maps PCM to [0, 1], which would put a DC offset on every clip.
func wavToFloat(raw any) ([]float64, error) {
	switch s := raw.(type) {
	case []int16:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v) / 32768
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = (float64(v) - 128) / 128
		}
		return out, nil
	case []float32:
		out := make([]float64, len(s))
		for i, v := range s {
			if f := float64(v); !math.IsNaN(f) {
				out[i] = clampUnit(f)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected sample type %T", raw)
}
