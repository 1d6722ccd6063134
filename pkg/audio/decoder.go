package audio

import (
	"bytes"
	"context"
	"log/slog"
	"time"
)

// DecoderConfig holds decoder configuration.
type DecoderConfig struct {
	// ChannelPolicy selects how multichannel input is reduced to mono.
	ChannelPolicy ChannelPolicy

	// FFmpegPath enables the ffmpeg fallback for containers the decoder does
	// not parse natively (WebM, MP4, MP3, ...). Empty disables the fallback
	// and such input is rejected as an unsupported container.
	FFmpegPath string

	// FFmpegSampleRate is the output rate requested from ffmpeg. Defaults to
	// 16000.
	FFmpegSampleRate int

	// FFmpegTimeout bounds a single ffmpeg invocation. Defaults to 30 s.
	FFmpegTimeout time.Duration
}

// Decoder converts uploaded buffers into [Clip] values. A Decoder holds no
// mutable state and is safe for concurrent use.
type Decoder struct {
	cfg    DecoderConfig
	ffmpeg *FFmpegDecoder
}

// NewDecoder creates a Decoder from cfg.
func NewDecoder(cfg DecoderConfig) *Decoder {
	d := &Decoder{cfg: cfg}
	if cfg.FFmpegPath != "" {
		d.ffmpeg = NewFFmpegDecoder(cfg.FFmpegPath, cfg.FFmpegSampleRate, cfg.FFmpegTimeout, cfg.ChannelPolicy)
	}
	return d
}

// Decode sniffs the container in data and decodes it to a mono Clip. All
// failures are returned as *[DecodeError].
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, decodeErr(FormatUnknown, ReasonEmpty, nil)
	}

	format := Sniff(data)
	var (
		clip *Clip
		err  error
	)
	switch format {
	case FormatWAV:
		clip, err = decodeWAV(data, d.cfg.ChannelPolicy)
	case FormatOggOpus:
		clip, err = decodeOggOpus(data, d.cfg.ChannelPolicy)
	default:
		if d.ffmpeg == nil {
			return nil, decodeErr(format, ReasonUnsupported, nil)
		}
		clip, err = d.ffmpeg.Decode(ctx, data)
	}
	if err != nil {
		return nil, err
	}
	if len(clip.Samples) == 0 {
		return nil, decodeErr(clip.Format, ReasonEmpty, nil)
	}
	if clip.SourceChannels > 1 {
		slog.Debug("audio: reduced multichannel input",
			"format", clip.Format,
			"channels", clip.SourceChannels,
			"policy", d.cfg.ChannelPolicy.String(),
		)
	}
	return clip, nil
}

// DecodeRaw decodes headerless 16-bit signed little-endian PCM. The caller
// must supply the format since raw PCM carries no header to sniff.
func (d *Decoder) DecodeRaw(data []byte, sampleRate, channels int) (*Clip, error) {
	return decodeRaw(data, sampleRate, channels, d.cfg.ChannelPolicy)
}

// Sniff names the container of data from its magic bytes. It returns
// [FormatUnknown] for anything it does not recognise; the ffmpeg fallback is
// then the only decoder that may accept the buffer.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOggOpus
	default:
		return FormatUnknown
	}
}
