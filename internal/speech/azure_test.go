package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// wavBytes builds a minimal RIFF/WAVE file around pcm.
func wavBytes(pcm []byte) []byte {
	buf := make([]byte, 0, 44+len(pcm))
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(pcm)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, ChannelCount)
	buf = binary.LittleEndian.AppendUint32(buf, SampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, SampleRate*ChannelCount*BitDepth/8)
	buf = binary.LittleEndian.AppendUint16(buf, ChannelCount*BitDepth/8)
	buf = binary.LittleEndian.AppendUint16(buf, BitDepth)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pcm)))
	return append(buf, pcm...)
}

func TestBuildSSML(t *testing.T) {
	ssml := buildSSML(SynthesisRequest{
		Text:   "Turno C 0 0 7, pasar a Sala <3>",
		Lang:   "es-MX",
		Voice:  "es-MX-DaliaNeural",
		Volume: 1,
		Rate:   0.9,
		Pitch:  1,
	})

	for _, want := range []string{
		"xml:lang='es-MX'",
		"name='es-MX-DaliaNeural'",
		"rate='-10%'",
		"volume='+0%'",
		"Sala &lt;3&gt;",
	} {
		if !strings.Contains(ssml, want) {
			t.Errorf("ssml missing %q: %s", want, ssml)
		}
	}
}

func TestAzureClientSynthesizeAndListVoices(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/cognitiveservices/v1":
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			_, _ = w.Write(wavBytes([]byte{1, 2, 3, 4}))
		case "/cognitiveservices/voices/list":
			_, _ = io.WriteString(w, `[{"ShortName":"es-MX-DaliaNeural","Locale":"es-MX","Gender":"Female"},{"ShortName":"es-MX-JorgeNeural","Locale":"es-MX","Gender":"Male"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewAzureClient("k", "test", logger.New(logger.LevelOff, nil), WithBaseURL(srv.URL))

	audio, err := c.Synthesize(context.Background(), SynthesisRequest{Text: "hola"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	pcm, err := extractPCM(audio)
	if err != nil || len(pcm) != 4 {
		t.Fatalf("expected 4 bytes of pcm, got %v (%v)", pcm, err)
	}
	if !strings.Contains(gotBody, DefaultVoice) {
		t.Errorf("expected default voice in request, got %s", gotBody)
	}

	voices, err := c.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("list voices: %v", err)
	}
	if len(voices) != 2 || voices[0].Gender != GenderFemale || !voices[0].Default {
		t.Errorf("unexpected voices: %+v", voices)
	}
}

func TestAzureClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAzureClient("k", "test", logger.New(logger.LevelOff, nil), WithBaseURL(srv.URL))
	if _, err := c.Synthesize(context.Background(), SynthesisRequest{Text: "hola"}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

type fakeSynth struct {
	mu     sync.Mutex
	calls  int
	voices []Voice
}

func (s *fakeSynth) Synthesize(context.Context, SynthesisRequest) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return wavBytes([]byte{0, 0, 1, 1}), nil
}

func (s *fakeSynth) ListVoices(context.Context) ([]Voice, error) {
	return s.voices, nil
}

type fakeOut struct {
	mu     sync.Mutex
	played [][]byte
}

func (o *fakeOut) Play(pcm []byte, _ float64, onStart func()) error {
	o.mu.Lock()
	o.played = append(o.played, pcm)
	o.mu.Unlock()
	if onStart != nil {
		onStart()
	}
	return nil
}

func (o *fakeOut) Stop()   {}
func (o *fakeOut) Pause()  {}
func (o *fakeOut) Resume() {}

func TestAzurePlatformSpeaksThroughCache(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	synth := &fakeSynth{}
	out := &fakeOut{}
	p := newAzurePlatform(synth, out, NewAudioCache(log), log)

	speak := func(text string) {
		done := make(chan error, 1)
		u := &Utterance{
			Text:    text,
			Lang:    "es-MX",
			OnEnd:   func() { done <- nil },
			OnError: func(err error) { done <- err },
		}
		if err := p.Speak(u); err != nil {
			t.Fatalf("speak: %v", err)
		}
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("utterance failed: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("utterance did not complete")
		}
	}

	speak("Turno 1")
	speak("Turno 1")
	speak(" ")

	if synth.calls != 1 {
		t.Errorf("expected 1 synthesis (second from cache, blank is silence), got %d", synth.calls)
	}
	if len(out.played) != 3 {
		t.Errorf("expected 3 playbacks, got %d", len(out.played))
	}
	if p.Speaking() {
		t.Error("platform should be idle")
	}
}

func TestAzurePlatformRefreshNotifies(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	synth := &fakeSynth{voices: []Voice{{Name: "es-MX-DaliaNeural", Lang: "es-MX"}}}
	p := newAzurePlatform(synth, &fakeOut{}, nil, log)

	fired := 0
	unsub := p.OnVoicesChanged(func() { fired++ })
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	unsub()
	_ = p.Refresh(context.Background())

	if fired != 1 {
		t.Errorf("expected listener to fire once, got %d", fired)
	}
	if len(p.Voices()) != 1 {
		t.Errorf("expected 1 voice, got %d", len(p.Voices()))
	}
}

// stuckOut hangs the first audible Play until Stop, then takes a moment
// to unwind, like the oto poll loop. Later plays finish at once.
type stuckOut struct {
	mu       sync.Mutex
	hung     bool
	played   int
	stopped  chan struct{}
	stopOnce sync.Once
}

func newStuckOut() *stuckOut { return &stuckOut{stopped: make(chan struct{})} }

func (o *stuckOut) Play(_ []byte, volume float64, onStart func()) error {
	if onStart != nil {
		onStart()
	}
	o.mu.Lock()
	hang := volume > 0 && !o.hung
	if hang {
		o.hung = true
	}
	o.mu.Unlock()

	if hang {
		<-o.stopped
		time.Sleep(10 * time.Millisecond)
		return errPlaybackStopped
	}
	o.mu.Lock()
	o.played++
	o.mu.Unlock()
	return nil
}

func (o *stuckOut) Stop()   { o.stopOnce.Do(func() { close(o.stopped) }) }
func (o *stuckOut) Pause()  {}
func (o *stuckOut) Resume() {}

func TestEngineWatchdogFreesAzurePlaybackForNext(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	p := newAzurePlatform(&fakeSynth{}, newStuckOut(), nil, log)
	e := newTestEngine(p, WithWatchdog(200*time.Millisecond))
	defer e.Close()

	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	first := make(chan error, 1)
	go func() { first <- e.Speak(context.Background(), "Turno A 0 0 1, pasar a Sala 1") }()
	time.Sleep(50 * time.Millisecond)
	second := make(chan error, 1)
	go func() { second <- e.Speak(context.Background(), "Turno B 0 0 2, pasar a Sala 2") }()

	if err := <-first; !errors.Is(err, domain.ErrSpeechFailed) {
		t.Errorf("stuck utterance: expected ErrSpeechFailed, got %v", err)
	}
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("utterance after watchdog failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second utterance never finished")
	}
	if p.Speaking() {
		t.Error("platform should be idle")
	}
}

func TestAzurePlatformCancelWaitsForRun(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	p := newAzurePlatform(&fakeSynth{}, newStuckOut(), nil, log)

	failed := make(chan error, 1)
	started := make(chan struct{})
	u := &Utterance{
		Text:    "Turno C 0 0 7",
		Volume:  1,
		OnStart: func() { close(started) },
		OnError: func(err error) { failed <- err },
	}
	if err := p.Speak(u); err != nil {
		t.Fatalf("speak: %v", err)
	}
	<-started

	p.Cancel()
	if p.Speaking() {
		t.Fatal("Cancel returned before the playback slot was released")
	}
	if err := p.Speak(&Utterance{Text: "Turno D 0 0 8", Volume: 1}); err != nil {
		t.Fatalf("speak after cancel: %v", err)
	}
	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Error("cancelled utterance never reported")
	}
}
