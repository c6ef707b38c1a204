package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	errNotWAV      = errors.New("not a RIFF/WAVE file")
	errNoDataChunk = errors.New("wav: no data chunk")
)

// wavFormat is the part of the fmt chunk the player cares about.
type wavFormat struct {
	encoding   uint16 // 1 = integer PCM
	channels   uint16
	sampleRate uint32
	bitDepth   uint16
}

// extractPCM returns the data chunk of a RIFF/WAVE file. When a fmt chunk
// precedes it, the format must match what the player was opened with.
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	for pos := 12; pos+8 <= len(wav); {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := wav[pos+8:]
		if size < len(body) {
			body = body[:size]
		}

		switch id {
		case "fmt ":
			f, err := parseFormat(body)
			if err != nil {
				return nil, err
			}
			if err := f.check(); err != nil {
				return nil, err
			}
		case "data":
			return body, nil
		}

		pos += 8 + size + size%2 // chunks are word-aligned
	}
	return nil, errNoDataChunk
}

func parseFormat(b []byte) (wavFormat, error) {
	if len(b) < 16 {
		return wavFormat{}, fmt.Errorf("wav: fmt chunk is %d bytes", len(b))
	}
	return wavFormat{
		encoding:   binary.LittleEndian.Uint16(b[0:2]),
		channels:   binary.LittleEndian.Uint16(b[2:4]),
		sampleRate: binary.LittleEndian.Uint32(b[4:8]),
		bitDepth:   binary.LittleEndian.Uint16(b[14:16]),
	}, nil
}

func (f wavFormat) check() error {
	if f.encoding != 1 || f.channels != ChannelCount || f.sampleRate != SampleRate || f.bitDepth != BitDepth {
		return fmt.Errorf("wav: unsupported format (enc=%d ch=%d rate=%d bits=%d), want PCM %d Hz %d-bit mono",
			f.encoding, f.channels, f.sampleRate, f.bitDepth, SampleRate, BitDepth)
	}
	return nil
}

// silence returns d of zero-valued PCM in the player's format.
func silence(d time.Duration) []byte {
	frames := int(d.Seconds() * SampleRate)
	return make([]byte, frames*ChannelCount*BitDepth/8)
}
