package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/retry"
)

// Compile-time interface check.
var _ domain.Speaker = (*Engine)(nil)

// State is the Engine's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateSpeaking
	StateFailed
)

// String returns a human-readable engine state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSpeaking:
		return "speaking"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// A cancelled utterance gets busyAttempts*busySpacing to free the
// platform before the next one fails.
const (
	busyAttempts = 10
	busySpacing  = 50 * time.Millisecond
)

var (
	errSilentStart = errors.New("platform did not start speaking")
	errWatchdog    = errors.New("no completion callback before watchdog")
)

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLanguage sets the BCP 47 language tag used for voice selection and
// set on every utterance.
func WithLanguage(lang string) EngineOption {
	return func(e *Engine) {
		e.lang = lang
	}
}

// WithGender sets the preferred voice gender.
func WithGender(g Gender) EngineOption {
	return func(e *Engine) {
		e.gender = g
	}
}

// WithInitTimeout sets how long one handshake attempt waits for the
// silent utterance to complete.
func WithInitTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.initTimeout = d
	}
}

// WithInitRetry sets the handshake retry policy.
func WithInitRetry(p retry.Policy) EngineOption {
	return func(e *Engine) {
		e.initPolicy = p
	}
}

// WithWatchdog sets how long an utterance may run without a completion
// or error callback before the queue is forcibly advanced.
func WithWatchdog(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.watchdog = d
	}
}

// WithStartCheckDelay sets how soon after Speak the engine checks that
// the platform actually started. Zero disables the check.
func WithStartCheckDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.startCheck = d
	}
}

// WithVoicePoll sets the polling fallback for voice list loading.
func WithVoicePoll(every time.Duration, limit int) EngineOption {
	return func(e *Engine) {
		e.voicePoll = every
		e.voicePollLimit = limit
	}
}

// WithProsody sets volume, rate and pitch for announcements.
func WithProsody(volume, rate, pitch float64) EngineOption {
	return func(e *Engine) {
		e.volume, e.rate, e.pitch = volume, rate, pitch
	}
}

// Engine serializes speech through a single Platform: one utterance at a
// time, FIFO. It owns the platform's state; nothing else may call it.
type Engine struct {
	platform Platform
	log      *logger.Logger

	lang           string
	gender         Gender
	initTimeout    time.Duration
	initPolicy     retry.Policy
	watchdog       time.Duration
	startCheck     time.Duration
	voicePoll      time.Duration
	voicePollLimit int
	volume         float64
	rate           float64
	pitch          float64

	mu          sync.Mutex
	state       State
	initErr     error
	initDone    chan struct{}
	voice       *Voice
	queue       []*speakRequest
	notify      chan struct{}
	visible     bool
	visCh       chan struct{} // closed and replaced on every visibility change
	ctx         context.Context
	cancel      context.CancelFunc
	unsubVoices func()
	closed      bool
	wg          sync.WaitGroup
}

type speakRequest struct {
	ctx    context.Context
	text   string
	result chan error
}

// NewEngine creates a speech engine over platform. A nil platform is
// valid and means speech is unsupported: Initialize and Speak fail fast
// with domain.ErrSpeechUnsupported.
func NewEngine(platform Platform, log *logger.Logger, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		platform:       platform,
		log:            log,
		lang:           DefaultLanguage,
		gender:         DefaultGender,
		initTimeout:    DefaultInitTimeout,
		initPolicy:     retry.Exponential(DefaultInitAttempts, DefaultInitBackoff, 4*DefaultInitBackoff),
		watchdog:       DefaultWatchdog,
		startCheck:     DefaultStartCheckDelay,
		voicePoll:      DefaultVoicePoll,
		voicePollLimit: DefaultVoicePollLimit,
		volume:         DefaultVolume,
		rate:           DefaultRate,
		pitch:          DefaultPitch,
		notify:         make(chan struct{}, 1),
		visible:        true,
		visCh:          make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsSpeaking returns true while an utterance is in flight.
func (e *Engine) IsSpeaking() bool {
	return e.State() == StateSpeaking
}

// Voice returns the selected voice, or nil for the platform default.
func (e *Engine) Voice() *Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice
}

// Initialize performs the readiness handshake: a silent utterance whose
// completion callback must arrive within the init timeout, retried with
// backoff. After the budget is spent the engine is Failed for the rest
// of its life. Concurrent callers share one handshake.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.platform == nil {
		e.mu.Lock()
		e.state = StateFailed
		e.initErr = domain.ErrSpeechUnsupported
		e.mu.Unlock()
		return domain.ErrSpeechUnsupported
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrClosed
	}
	switch e.state {
	case StateReady, StateSpeaking:
		e.mu.Unlock()
		return nil
	case StateFailed:
		err := e.initErr
		e.mu.Unlock()
		return err
	case StateInitializing:
		done := e.initDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.mu.Lock()
		err := e.initErr
		e.mu.Unlock()
		return err
	}
	e.state = StateInitializing
	e.initDone = make(chan struct{})
	hidden := !e.visible
	e.mu.Unlock()

	e.startBackground()
	if hidden {
		// The handshake is silent; let it through a paused device.
		e.platform.Resume()
	}

	err := e.initPolicy.Do(ctx, func(attempt int) error {
		e.log.Debug("speech: handshake attempt %d", attempt)
		err := e.utter(ctx, e.utterance(" ", 0), e.initTimeout, false)
		if err != nil && ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return err
	})

	e.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.initErr = fmt.Errorf("%w: %v", domain.ErrSpeechInitTimeout, err)
		e.log.Warn("speech: initialization abandoned: %v", err)
	} else {
		e.state = StateReady
		e.initErr = nil
		e.log.Info("speech: ready (lang=%s, voice=%s)", e.lang, voiceName(e.voice))
	}
	close(e.initDone)
	err = e.initErr
	hidden = !e.visible
	e.mu.Unlock()

	if hidden {
		e.platform.Pause()
	}

	if err == nil {
		e.signal()
	}
	return err
}

// Speak queues text and blocks until it was spoken, failed after retry,
// or ctx is done. It initializes the engine on first use. Failed and
// unsupported engines return immediately.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := e.ready(ctx); err != nil {
		return err
	}

	req := &speakRequest{ctx: ctx, text: text, result: make(chan error, 1)}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrClosed
	}
	e.queue = append(e.queue, req)
	qLen := len(e.queue)
	e.mu.Unlock()

	e.log.Debug("speech: queued (queue_len=%d): %s", qLen, truncate(text, 60))
	e.signal()

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetVisible pauses in-flight speech when the display is hidden and
// resumes it when shown again, re-checking the voice list. Queued
// utterances wait while hidden. The silent init handshake is never paused.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	if e.visible == visible || e.closed {
		e.mu.Unlock()
		return
	}
	e.visible = visible
	close(e.visCh)
	e.visCh = make(chan struct{})
	handshaking := e.state == StateInitializing
	e.mu.Unlock()

	if e.platform == nil {
		return
	}
	if visible {
		e.log.Debug("speech: visible, resuming")
		e.platform.Resume()
		e.reloadVoices()
		e.signal()
	} else if !handshaking {
		e.log.Debug("speech: hidden, pausing")
		e.platform.Pause()
	}
}

// Close cancels pending speech and stops background goroutines. Queued
// Speak calls return domain.ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	pending := e.queue
	e.queue = nil
	unsub := e.unsubVoices
	e.unsubVoices = nil
	e.mu.Unlock()

	e.cancel()
	if unsub != nil {
		unsub()
	}
	if e.platform != nil {
		e.platform.Cancel()
	}
	for _, req := range pending {
		req.result <- domain.ErrClosed
	}
	e.wg.Wait()
	e.log.Debug("speech: closed (%d pending dropped)", len(pending))
}

// ready returns nil when the engine can accept speech, initializing it
// lazily.
func (e *Engine) ready(ctx context.Context) error {
	if e.platform == nil {
		return domain.ErrSpeechUnsupported
	}
	e.mu.Lock()
	state, initErr, closed := e.state, e.initErr, e.closed
	e.mu.Unlock()

	switch {
	case closed:
		return domain.ErrClosed
	case state == StateFailed:
		return initErr
	case state == StateReady || state == StateSpeaking:
		return nil
	default:
		return e.Initialize(ctx)
	}
}

// startBackground loads voices and starts the queue processor and voice
// poller. Called once, on the first Initialize.
func (e *Engine) startBackground() {
	e.reloadVoices()
	unsub := e.platform.OnVoicesChanged(func() { e.reloadVoices() })

	e.mu.Lock()
	e.unsubVoices = unsub
	e.mu.Unlock()

	e.wg.Add(2)
	go e.processLoop()
	go e.pollVoices()
}

func (e *Engine) signal() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// processLoop waits for queued items and speaks them one at a time.
func (e *Engine) processLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.notify:
			e.drain()
		}
	}
}

// drain speaks queued items in FIFO order until the queue is empty,
// the engine is hidden, or it was closed.
func (e *Engine) drain() {
	for {
		e.mu.Lock()
		if e.closed || !e.visible || len(e.queue) == 0 || (e.state != StateReady && e.state != StateSpeaking) {
			e.mu.Unlock()
			return
		}
		req := e.queue[0]
		e.queue = e.queue[1:]
		e.state = StateSpeaking
		e.mu.Unlock()

		var err error
		if req.ctx.Err() != nil {
			err = req.ctx.Err()
		} else {
			err = e.speakOne(req.ctx, req.text)
		}
		req.result <- err

		e.mu.Lock()
		if e.state == StateSpeaking {
			e.state = StateReady
		}
		e.mu.Unlock()
	}
}

// speakOne narrates text, re-issuing it once when the platform silently
// fails to start.
func (e *Engine) speakOne(ctx context.Context, text string) error {
	err := retry.Immediate(2).Do(ctx, func(attempt int) error {
		if attempt > 1 {
			e.log.Debug("speech: re-issuing after silent start failure")
		}
		err := e.utter(ctx, e.utterance(text, e.volume), e.watchdog, true)
		if err == nil || errors.Is(err, errSilentStart) {
			return err
		}
		return retry.Permanent(err)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrClosed) {
		return err
	}
	e.log.Warn("speech: utterance failed: %v", err)
	return fmt.Errorf("%w: %v", domain.ErrSpeechFailed, err)
}

// utter issues one utterance and waits for exactly one outcome: its
// completion or error callback, the start check, the watchdog, or ctx.
// For queued speech (checkStart) the watchdog is suspended while the
// engine is hidden; the handshake timeout is not.
func (e *Engine) utter(ctx context.Context, u *Utterance, timeout time.Duration, checkStart bool) error {
	outcome := make(chan error, 1)
	var once sync.Once
	finish := func(err error) {
		once.Do(func() { outcome <- err })
	}

	started := make(chan struct{})
	var startOnce sync.Once
	u.OnStart = func() { startOnce.Do(func() { close(started) }) }
	u.OnEnd = func() { finish(nil) }
	u.OnError = func(err error) {
		if err == nil {
			err = errors.New("unknown platform error")
		}
		finish(err)
	}

	if err := e.start(ctx, u); err != nil {
		return err
	}

	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()

	var check <-chan time.Time
	if checkStart && e.startCheck > 0 {
		t := time.NewTimer(e.startCheck)
		defer t.Stop()
		check = t.C
	}

	for {
		e.mu.Lock()
		visCh := e.visCh
		e.mu.Unlock()

		select {
		case err := <-outcome:
			return err
		case <-check:
			check = nil
			select {
			case <-started:
				continue
			default:
			}
			if !e.platform.Speaking() {
				e.platform.Cancel()
				return errSilentStart
			}
		case <-visCh:
			if !checkStart {
				// The init handshake keeps its own deadline while hidden.
				continue
			}
			e.mu.Lock()
			visible := e.visible
			e.mu.Unlock()
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			if visible {
				watchdog.Reset(timeout)
			}
		case <-watchdog.C:
			e.log.Warn("speech: watchdog fired after %s, advancing queue", timeout)
			e.platform.Cancel()
			return errWatchdog
		case <-ctx.Done():
			e.platform.Cancel()
			return ctx.Err()
		case <-e.ctx.Done():
			return domain.ErrClosed
		}
	}
}

// start hands u to the platform, waiting out a playback slot that a
// just-cancelled utterance has not released yet.
func (e *Engine) start(ctx context.Context, u *Utterance) error {
	return retry.Constant(busyAttempts, busySpacing).Do(ctx, func(int) error {
		err := e.platform.Speak(u)
		if err == nil || errors.Is(err, errPlatformBusy) {
			return err
		}
		return retry.Permanent(err)
	})
}

func (e *Engine) utterance(text string, volume float64) *Utterance {
	e.mu.Lock()
	voice := e.voice
	e.mu.Unlock()
	return &Utterance{
		Text:   text,
		Volume: volume,
		Rate:   e.rate,
		Pitch:  e.pitch,
		Lang:   e.lang,
		Voice:  voice,
	}
}

// reloadVoices re-runs voice selection against the platform's list.
func (e *Engine) reloadVoices() bool {
	voices := e.platform.Voices()
	selected := SelectVoice(voices, e.lang, e.gender)

	e.mu.Lock()
	changed := voiceName(e.voice) != voiceName(selected)
	e.voice = selected
	e.mu.Unlock()

	if changed {
		e.log.Debug("speech: %d voices, selected %s", len(voices), voiceName(selected))
	}
	return len(voices) > 0
}

// pollVoices is the fallback for platforms that never fire the
// voices-changed callback. It stops once voices appear.
func (e *Engine) pollVoices() {
	defer e.wg.Done()
	if e.voicePoll <= 0 {
		return
	}
	ticker := time.NewTicker(e.voicePoll)
	defer ticker.Stop()

	for i := 0; e.voicePollLimit <= 0 || i < e.voicePollLimit; i++ {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if e.reloadVoices() {
				return
			}
		}
	}
}

func voiceName(v *Voice) string {
	if v == nil {
		return "platform-default"
	}
	return v.Name
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
