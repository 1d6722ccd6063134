package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"layeh.com/gopus"
)

// Browsers record Opus in Ogg at 48 kHz; frames are at most 120 ms.
const (
	opusSampleRate   = 48000
	opusMaxFrameSize = opusSampleRate * 120 / 1000 // 5760 samples per channel

	oggPageHeaderSize = 27
)

var errOggTruncated = errors.New("ogg page extends past end of buffer")

// oggPackets splits an Ogg bitstream into its logical packets. Only the first
// logical stream is read; pages of other serial numbers are skipped.
func oggPackets(data []byte) ([][]byte, error) {
	var (
		packets [][]byte
		partial []byte
		serial  uint32
		first   = true
	)
	for off := 0; off < len(data); {
		if len(data)-off < oggPageHeaderSize {
			return packets, errOggTruncated
		}
		hdr := data[off : off+oggPageHeaderSize]
		if !bytes.Equal(hdr[0:4], []byte("OggS")) {
			return packets, fmt.Errorf("missing capture pattern at offset %d", off)
		}
		pageSerial := binary.LittleEndian.Uint32(hdr[14:18])
		nsegs := int(hdr[26])
		if len(data)-off < oggPageHeaderSize+nsegs {
			return packets, errOggTruncated
		}
		lacing := data[off+oggPageHeaderSize : off+oggPageHeaderSize+nsegs]
		bodyLen := 0
		for _, l := range lacing {
			bodyLen += int(l)
		}
		bodyStart := off + oggPageHeaderSize + nsegs
		if len(data)-bodyStart < bodyLen {
			return packets, errOggTruncated
		}
		if first {
			serial = pageSerial
			first = false
		}
		if pageSerial == serial {
			body := data[bodyStart : bodyStart+bodyLen]
			pos := 0
			for _, l := range lacing {
				partial = append(partial, body[pos:pos+int(l)]...)
				pos += int(l)
				if l < 255 {
					packets = append(packets, partial)
					partial = nil
				}
			}
		}
		off = bodyStart + bodyLen
	}
	if len(partial) > 0 {
		return packets, errOggTruncated
	}
	return packets, nil
}

func decodeOggOpus(data []byte, policy ChannelPolicy) (*Clip, error) {
	packets, err := oggPackets(data)
	if err != nil {
		if errors.Is(err, errOggTruncated) {
			return nil, decodeErr(FormatOggOpus, ReasonTruncated, err)
		}
		return nil, decodeErr(FormatOggOpus, ReasonCorrupt, err)
	}
	if len(packets) == 0 {
		return nil, decodeErr(FormatOggOpus, ReasonEmpty, nil)
	}

	head := packets[0]
	if len(head) < 19 || !bytes.HasPrefix(head, []byte("OpusHead")) {
		return nil, decodeErr(FormatOggOpus, ReasonUnsupported, errors.New("first packet is not OpusHead"))
	}
	channels := int(head[9])
	preSkip := int(binary.LittleEndian.Uint16(head[10:12]))
	if channels < 1 || channels > 2 {
		return nil, decodeErr(FormatOggOpus, ReasonUnsupported, fmt.Errorf("%d channel opus", channels))
	}

	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, decodeErr(FormatOggOpus, ReasonCorrupt, err)
	}

	var pcm []int16
	for i, pkt := range packets[1:] {
		if i == 0 && bytes.HasPrefix(pkt, []byte("OpusTags")) {
			continue
		}
		if len(pkt) == 0 {
			continue
		}
		frame, err := dec.Decode(pkt, opusMaxFrameSize, false)
		if err != nil {
			return nil, decodeErr(FormatOggOpus, ReasonCorrupt, fmt.Errorf("packet %d: %w", i+1, err))
		}
		pcm = append(pcm, frame...)
	}

	skip := preSkip * channels
	if skip > len(pcm) {
		skip = len(pcm)
	}
	pcm = pcm[skip:]

	return &Clip{
		Samples:        ToMono(int16sToFloats(pcm), channels, policy),
		SampleRate:     opusSampleRate,
		SourceChannels: channels,
		Format:         FormatOggOpus,
	}, nil
}
