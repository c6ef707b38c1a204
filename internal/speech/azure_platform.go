package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface check.
var _ Platform = (*AzurePlatform)(nil)

// synthesizer is the part of AzureClient the platform needs.
type synthesizer interface {
	Synthesize(ctx context.Context, r SynthesisRequest) ([]byte, error)
	ListVoices(ctx context.Context) ([]Voice, error)
}

// audioOut is the part of Player the platform needs.
type audioOut interface {
	Play(pcm []byte, volume float64, onStart func()) error
	Stop()
	Pause()
	Resume()
}

// handshakeSilence is how much silence a blank utterance plays.
const handshakeSilence = 50 * time.Millisecond

// cancelWait bounds how long Cancel waits for the aborted utterance to
// release the playback slot.
const cancelWait = time.Second

// errPlatformBusy is returned by Speak while the playback slot is taken.
var errPlatformBusy = errors.New("azure platform: already speaking")

// AzurePlatform is a Platform backed by Azure TTS and the local audio
// device. It has one playback slot; synthesis and playback of an
// utterance run on their own goroutine and report through its callbacks.
type AzurePlatform struct {
	synth synthesizer
	out   audioOut
	cache *AudioCache
	log   *logger.Logger

	mu        sync.Mutex
	voices    []Voice
	listeners map[int]func()
	nextID    int
	speaking  bool
	cancelCur context.CancelFunc
	runDone   chan struct{} // closed when the current run exits
}

// NewAzurePlatform wires an Azure client, player and optional cache into
// a Platform. cache may be nil.
func NewAzurePlatform(client *AzureClient, player *Player, cache *AudioCache, log *logger.Logger) *AzurePlatform {
	return newAzurePlatform(client, player, cache, log)
}

func newAzurePlatform(synth synthesizer, out audioOut, cache *AudioCache, log *logger.Logger) *AzurePlatform {
	return &AzurePlatform{
		synth:     synth,
		out:       out,
		cache:     cache,
		log:       log,
		listeners: make(map[int]func()),
	}
}

// Refresh reloads the voice list from Azure and notifies listeners.
func (p *AzurePlatform) Refresh(ctx context.Context) error {
	voices, err := p.synth.ListVoices(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.voices = voices
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// Speak starts synthesizing and playing u.
func (p *AzurePlatform) Speak(u *Utterance) error {
	p.mu.Lock()
	if p.speaking {
		p.mu.Unlock()
		return errPlatformBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.speaking = true
	p.cancelCur = cancel
	p.runDone = done
	p.mu.Unlock()

	go p.run(ctx, u, done)
	return nil
}

func (p *AzurePlatform) run(ctx context.Context, u *Utterance, done chan struct{}) {
	err := p.play(ctx, u)

	p.mu.Lock()
	p.speaking = false
	if p.cancelCur != nil {
		p.cancelCur()
		p.cancelCur = nil
	}
	p.runDone = nil
	p.mu.Unlock()
	close(done)

	if err != nil {
		u.failed(err)
		return
	}
	u.ended()
}

func (p *AzurePlatform) play(ctx context.Context, u *Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return p.out.Play(silence(handshakeSilence), 0, u.started)
	}

	req := SynthesisRequest{
		Text:   u.Text,
		Lang:   u.Lang,
		Volume: u.Volume,
		Rate:   u.Rate,
		Pitch:  u.Pitch,
	}
	if u.Voice != nil {
		req.Voice = u.Voice.Name
	}

	wav, ok := p.lookup(req)
	if !ok {
		var err error
		wav, err = p.synth.Synthesize(ctx, req)
		if err != nil {
			return err
		}
		if p.cache != nil {
			p.cache.Put(req, wav)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pcm, err := extractPCM(wav)
	if err != nil {
		return err
	}
	return p.out.Play(pcm, 1, u.started)
}

func (p *AzurePlatform) lookup(r SynthesisRequest) ([]byte, bool) {
	if p.cache == nil {
		return nil, false
	}
	return p.cache.Get(r)
}

// Cancel aborts the current utterance, if any, and waits up to
// cancelWait for the playback slot to free up.
func (p *AzurePlatform) Cancel() {
	p.mu.Lock()
	cancel := p.cancelCur
	done := p.runDone
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.out.Stop()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(cancelWait):
		p.log.Warn("azure platform: playback did not stop within %s", cancelWait)
	}
}

// Pause holds playback.
func (p *AzurePlatform) Pause() { p.out.Pause() }

// Resume continues playback.
func (p *AzurePlatform) Resume() { p.out.Resume() }

// Speaking reports whether an utterance is in flight.
func (p *AzurePlatform) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Voices returns the last loaded voice list.
func (p *AzurePlatform) Voices() []Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Voice, len(p.voices))
	copy(out, p.voices)
	return out
}

// OnVoicesChanged registers fn to run after every Refresh.
func (p *AzurePlatform) OnVoicesChanged(fn func()) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}
