package speech

import (
	"bytes"
	"os"
	"testing"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

func TestAudioCacheEvictsLeastRecent(t *testing.T) {
	c := NewAudioCache(logger.New(logger.LevelOff, nil), WithCacheEntries(2))
	a := SynthesisRequest{Text: "Turno A 0 0 1, pasar a Sala 1", Lang: "es-MX"}
	b := SynthesisRequest{Text: "Turno B 0 0 2, pasar a Sala 2", Lang: "es-MX"}
	d := SynthesisRequest{Text: "Turno D 0 0 3, pasar a Sala 3", Lang: "es-MX"}

	c.Put(a, []byte("a"))
	c.Put(b, []byte("b"))
	if _, ok := c.Get(a); !ok { // a is now most recent
		t.Fatal("a missing")
	}
	c.Put(d, []byte("d"))

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get(b); ok {
		t.Error("b should have been evicted")
	}
	if got, ok := c.Get(d); !ok || string(got) != "d" {
		t.Errorf("d = %q, %v", got, ok)
	}

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("stats = %d/%d, want 2/1", hits, misses)
	}
}

func TestAudioCacheKeyIncludesVoiceAndProsody(t *testing.T) {
	c := NewAudioCache(logger.New(logger.LevelOff, nil))
	base := SynthesisRequest{Text: "hola", Lang: "es-MX", Voice: "es-MX-DaliaNeural", Rate: 0.9}
	c.Put(base, []byte("x"))

	other := base
	other.Voice = "es-MX-JorgeNeural"
	if _, ok := c.Get(other); ok {
		t.Error("different voice must miss")
	}
	other = base
	other.Rate = 1.2
	if _, ok := c.Get(other); ok {
		t.Error("different rate must miss")
	}
	other = base
	other.Lang = "ES_mx"
	if _, ok := c.Get(other); !ok {
		t.Error("language tag should be normalized")
	}
}

func TestAudioCacheDiskLayer(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.LevelOff, nil)
	req := SynthesisRequest{Text: "Turno C 0 0 7, pasar a Consultorio 3", Lang: "es-MX"}
	wav := []byte("RIFF....WAVE")

	NewAudioCache(log, WithCacheDir(dir, true)).Put(req, wav)

	fresh := NewAudioCache(log, WithCacheDir(dir, false))
	got, ok := fresh.Get(req)
	if !ok || !bytes.Equal(got, wav) {
		t.Fatalf("disk layer miss: %q, %v", got, ok)
	}

	// Read-only layers never write.
	other := SynthesisRequest{Text: "otro", Lang: "es-MX"}
	fresh.Put(other, []byte("y"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("disk entries = %d, want 1", len(entries))
	}
}
