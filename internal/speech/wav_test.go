package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestExtractPCM(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	got, err := extractPCM(wavBytes(pcm))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestExtractPCMSkipsUnknownChunks(t *testing.T) {
	wav := wavBytes([]byte{9, 9})
	// Insert an odd-sized LIST chunk (padded) between fmt and data.
	list := append([]byte("LIST"), binary.LittleEndian.AppendUint32(nil, 3)...)
	list = append(list, 'a', 'b', 'c', 0)
	at := 12 + 8 + 16
	wav = append(wav[:at:at], append(list, wav[at:]...)...)

	got, err := extractPCM(wav)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{9, 9}) {
		t.Errorf("pcm = %v", got)
	}
}

func TestExtractPCMErrors(t *testing.T) {
	if _, err := extractPCM([]byte("garbage")); !errors.Is(err, errNotWAV) {
		t.Errorf("garbage: %v", err)
	}

	noData := wavBytes(nil)[:12+8+16]
	if _, err := extractPCM(noData); !errors.Is(err, errNoDataChunk) {
		t.Errorf("no data: %v", err)
	}

	stereo := wavBytes([]byte{0, 0})
	binary.LittleEndian.PutUint16(stereo[12+8+2:], 2)
	if _, err := extractPCM(stereo); err == nil {
		t.Error("stereo audio should be rejected")
	}
}

func TestSilenceLength(t *testing.T) {
	if got, want := len(silence(100*time.Millisecond)), SampleRate/10*ChannelCount*BitDepth/8; got != want {
		t.Errorf("silence bytes = %d, want %d", got, want)
	}
}
