package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	defaultFFmpegSampleRate = 16000
	defaultFFmpegTimeout    = 30 * time.Second
)

// FFmpegDecoder decodes arbitrary containers by piping them through an ffmpeg
// binary and reading raw float64 little-endian mono samples back.
type FFmpegDecoder struct {
	path       string
	sampleRate int
	timeout    time.Duration
	policy     ChannelPolicy
}

// NewFFmpegDecoder creates an FFmpegDecoder. Zero sampleRate and timeout
// select 16 kHz and 30 s.
func NewFFmpegDecoder(path string, sampleRate int, timeout time.Duration, policy ChannelPolicy) *FFmpegDecoder {
	if sampleRate <= 0 {
		sampleRate = defaultFFmpegSampleRate
	}
	if timeout <= 0 {
		timeout = defaultFFmpegTimeout
	}
	return &FFmpegDecoder{path: path, sampleRate: sampleRate, timeout: timeout, policy: policy}
}

// args builds the ffmpeg command line reading from stdin and writing to stdout.
func (d *FFmpegDecoder) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
	if d.policy == FirstChannel {
		args = append(args, "-af", "pan=mono|c0=c0")
	} else {
		args = append(args, "-ac", "1")
	}
	return append(args,
		"-ar", strconv.Itoa(d.sampleRate),
		"-f", "f64le",
		"pipe:1",
	)
}

// Decode runs ffmpeg over data. A missing binary is reported as an
// unsupported container; a non-zero exit as a corrupt buffer.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*Clip, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.path, d.args()...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, decodeErr(FormatFFmpeg, ReasonUnsupported, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("audio: ffmpeg: %w", ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		return nil, decodeErr(FormatFFmpeg, ReasonCorrupt, fmt.Errorf("%w: %s", err, msg))
	}

	return &Clip{
		Samples:    float64sFromLE(out),
		SampleRate: d.sampleRate,
		Format:     FormatFFmpeg,
	}, nil
}

// float64sFromLE converts raw f64le output, ignoring a trailing partial value.
func float64sFromLE(b []byte) []float64 {
	n := len(b) / 8
	out := make([]float64, n)
	for i := range n {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}
