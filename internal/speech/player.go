package speech

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Player plays WAV/PCM data on the system audio device via oto. It has a
// single playback slot, mirroring the platform speech engines it stands in for.
type Player struct {
	ctx *oto.Context
	log *logger.Logger

	mu      sync.Mutex
	active  *oto.Player // currently playing, nil when idle
	paused  bool
	stopped bool
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable.
func NewPlayer(log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{ctx: ctx, log: log}, nil
}

// Play plays raw PCM synchronously at the given volume (0..1). It blocks
// until playback finishes or Stop is called; Pause holds it in place.
// onStart runs once audio is actually flowing.
func (p *Player) Play(pcm []byte, volume float64, onStart func()) error {
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	player.SetVolume(volume)

	p.mu.Lock()
	p.active = player
	p.stopped = false
	paused := p.paused
	p.mu.Unlock()

	if !paused {
		player.Play()
	}
	if onStart != nil {
		onStart()
	}
	p.log.Debug("audio player: playing %d bytes of PCM", len(pcm))

	for {
		p.mu.Lock()
		stopped, paused := p.stopped, p.paused
		p.mu.Unlock()
		if stopped || (!paused && !player.IsPlaying()) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	p.active = nil
	stopped := p.stopped
	p.mu.Unlock()

	if err := player.Close(); err != nil {
		return err
	}
	if stopped {
		return errPlaybackStopped
	}
	return nil
}

var errPlaybackStopped = errors.New("playback stopped")

// Stop interrupts the currently playing audio, if any. Safe to call
// concurrently and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.stopped = true
	p.mu.Unlock()

	if active != nil {
		active.Pause()
		p.log.Debug("audio player: interrupted")
	}
}

// Pause holds the current audio in place. Later Play calls start paused
// until Resume.
func (p *Player) Pause() {
	p.mu.Lock()
	p.paused = true
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Pause()
	}
}

// Resume continues paused audio.
func (p *Player) Resume() {
	p.mu.Lock()
	p.paused = false
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Play()
	}
}
