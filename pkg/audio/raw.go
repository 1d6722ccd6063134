package audio

import (
	"encoding/binary"
	"fmt"
)

func decodeRaw(data []byte, sampleRate, channels int, policy ChannelPolicy) (*Clip, error) {
	if len(data) == 0 {
		return nil, decodeErr(FormatRaw, ReasonEmpty, nil)
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, decodeErr(FormatRaw, ReasonUnsupported, fmt.Errorf("invalid format %d Hz / %d ch", sampleRate, channels))
	}
	if frameBytes := 2 * channels; len(data)%frameBytes != 0 {
		return nil, decodeErr(FormatRaw, ReasonTruncated, fmt.Errorf("%d bytes is not a multiple of the %d byte frame", len(data), frameBytes))
	}

	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return &Clip{
		Samples:        ToMono(int16sToFloats(pcm), channels, policy),
		SampleRate:     sampleRate,
		SourceChannels: channels,
		Format:         FormatRaw,
	}, nil
}
