package speech

import "time"

// Default voice and language for announcements. The voice is only a
// preference; the engine falls back through SelectVoice.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const (
	DefaultVoice    = "es-MX-DaliaNeural"
	DefaultLanguage = "es-MX"
	DefaultGender   = GenderFemale
)

// Audio format returned by Azure and expected by the player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Audio parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// Env var names for Azure Speech credentials.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

// Engine timing defaults.
const (
	DefaultInitTimeout     = 3 * time.Second
	DefaultInitAttempts    = 3
	DefaultInitBackoff     = 500 * time.Millisecond
	DefaultWatchdog        = 8 * time.Second
	DefaultStartCheckDelay = 250 * time.Millisecond
	DefaultVoicePoll       = 2 * time.Second
	DefaultVoicePollLimit  = 10
)

// Prosody defaults for announcements: slightly slow, full volume.
const (
	DefaultVolume = 1.0
	DefaultRate   = 0.9
	DefaultPitch  = 1.0
)
