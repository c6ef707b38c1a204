package config

import "github.com/spf13/pflag"

// Flag names shared by every command.
const (
	FlagConfig       = "config"
	FlagLogLevel     = "log-level"
	FlagLogFile      = "log-file"
	FlagDSN          = "dsn"
	FlagBroadcast    = "broadcast"
	FlagBroadcastURL = "broadcast-url"
	FlagChannel      = "channel"
	FlagDeviceID     = "device-id"
	FlagNoSpeech     = "no-speech"
	FlagLanguage     = "language"
	FlagGender       = "gender"
	FlagVoice        = "voice"
	FlagCacheDir     = "cache-dir"
	FlagDedupWindow  = "dedup-window"
	FlagAddr         = "addr"
)

// RegisterFlags adds the override flags to fs. Defaults shown in help are
// the built-in ones; unset flags never override file or environment
// values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "config file (.yaml or .toml)")
	fs.String(FlagLogLevel, d.Log.Level, "log level: off, normal, verbose")
	fs.String(FlagLogFile, d.Log.File, `log file ("stderr" logs to the console)`)
	fs.String(FlagDSN, "", "PostgreSQL DSN (empty uses the in-memory store)")
	fs.String(FlagBroadcast, d.Broadcast.Backend, "broadcast backend: memory, redis, nats, kafka, none")
	fs.String(FlagBroadcastURL, "", "broadcast backend URL")
	fs.String(FlagChannel, d.Broadcast.Channel, "broadcast channel name")
	fs.String(FlagDeviceID, "", "device id used in acknowledgements (random when empty)")
	fs.Bool(FlagNoSpeech, false, "disable text-to-speech")
	fs.String(FlagLanguage, d.Speech.Language, "announcement language tag")
	fs.String(FlagGender, d.Speech.Gender, "preferred voice gender: female, male")
	fs.String(FlagVoice, d.Speech.Voice, "preferred Azure voice name")
	fs.String(FlagCacheDir, d.Speech.CacheDir, "directory for the TTS audio cache")
	fs.Duration(FlagDedupWindow, d.Announce.DedupWindow.Std(), "window in which repeat announcements are ignored")
	fs.String(FlagAddr, "", "listen address of the SockJS screen gateway")
}

// ApplyFlags copies every flag the user set on fs into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}

	str(FlagLogLevel, &c.Log.Level)
	str(FlagLogFile, &c.Log.File)
	str(FlagDSN, &c.Database.DSN)
	str(FlagBroadcast, &c.Broadcast.Backend)
	str(FlagBroadcastURL, &c.Broadcast.URL)
	str(FlagChannel, &c.Broadcast.Channel)
	str(FlagDeviceID, &c.Broadcast.DeviceID)
	str(FlagLanguage, &c.Speech.Language)
	str(FlagGender, &c.Speech.Gender)
	str(FlagVoice, &c.Speech.Voice)
	str(FlagCacheDir, &c.Speech.CacheDir)
	str(FlagAddr, &c.Display.Addr)

	if err == nil && fs.Changed(FlagNoSpeech) {
		var off bool
		if off, err = fs.GetBool(FlagNoSpeech); off {
			c.Speech.Enabled = false
		}
	}
	if err == nil && fs.Changed(FlagDedupWindow) {
		d, derr := fs.GetDuration(FlagDedupWindow)
		if err = derr; err == nil {
			c.Announce.DedupWindow = Duration(d)
		}
	}
	if err != nil {
		return err
	}
	return c.Validate()
}
