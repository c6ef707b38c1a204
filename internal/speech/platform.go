// Package speech narrates announcement text through a platform
// text-to-speech backend. The Engine is the only component that talks to
// a Platform; it serializes utterances, selects a voice, and recovers from
// the platform's silent failures.
package speech

import "strings"

// Gender is the voice gender advertised by a platform.
type Gender string

const (
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
	GenderUnknown Gender = ""
)

// Voice is one platform voice.
type Voice struct {
	Name    string
	Lang    string // BCP 47 tag, e.g. "es-MX"
	Gender  Gender
	Default bool
}

// Utterance is one speak request handed to a Platform. The callbacks
// are invoked by the platform from any goroutine; each may fire at most
// once, and after Cancel the platform may fire OnError or nothing.
type Utterance struct {
	Text   string
	Volume float64 // 0..1
	Rate   float64 // 1 = normal
	Pitch  float64 // 1 = normal
	Lang   string
	Voice  *Voice // nil = platform default voice

	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

func (u *Utterance) started() {
	if u.OnStart != nil {
		u.OnStart()
	}
}

func (u *Utterance) ended() {
	if u.OnEnd != nil {
		u.OnEnd()
	}
}

func (u *Utterance) failed(err error) {
	if u.OnError != nil {
		u.OnError(err)
	}
}

// Platform is the raw, stateful, callback-based speech API. It has a
// single playback slot: Speak while speaking replaces nothing and is the
// caller's bug. Only Engine may drive a Platform.
type Platform interface {
	// Speak starts the utterance asynchronously. A returned error means
	// it never started and no callback will fire.
	Speak(u *Utterance) error
	Cancel()
	Pause()
	Resume()
	Speaking() bool
	Voices() []Voice
	// OnVoicesChanged registers fn to run whenever the voice list changes.
	OnVoicesChanged(fn func()) (unsubscribe func())
}

// normLang lowercases a BCP 47 tag and uses '-' as separator.
func normLang(tag string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
}

// primaryLang returns the language subtag ("es" for "es-MX").
func primaryLang(tag string) string {
	tag = normLang(tag)
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		return tag[:i]
	}
	return tag
}
