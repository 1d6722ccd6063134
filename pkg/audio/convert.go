package audio

import (
	"encoding/binary"
	"fmt"
)

// ChannelPolicy selects how multichannel input is reduced to mono.
type ChannelPolicy int

const (
	// FirstChannel keeps channel 0 and discards the rest.
	FirstChannel ChannelPolicy = iota
	// Downmix averages all channels per frame.
	Downmix
)

// String implements [fmt.Stringer].
func (p ChannelPolicy) String() string {
	switch p {
	case FirstChannel:
		return "first"
	case Downmix:
		return "downmix"
	default:
		return fmt.Sprintf("ChannelPolicy(%d)", int(p))
	}
}

// ParseChannelPolicy maps a config value ("first", "downmix") to a policy.
// The empty string selects FirstChannel.
func ParseChannelPolicy(s string) (ChannelPolicy, error) {
	switch s {
	case "", "first":
		return FirstChannel, nil
	case "downmix":
		return Downmix, nil
	default:
		return 0, fmt.Errorf("audio: unknown channel policy %q", s)
	}
}

// ToMono reduces interleaved samples with the given channel count to a mono
// signal according to policy. Any trailing incomplete frame is dropped.
func ToMono(interleaved []float64, channels int, policy ChannelPolicy) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		base := i * channels
		if policy == Downmix {
			var sum float64
			for ch := range channels {
				sum += interleaved[base+ch]
			}
			mono[i] = sum / float64(channels)
			continue
		}
		mono[i] = interleaved[base]
	}
	return mono
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match the input is returned unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// int16sToFloats normalises signed 16-bit samples to [-1, 1).
func int16sToFloats(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// EncodeWAV wraps 16-bit signed little-endian PCM in a canonical 44-byte
// RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
