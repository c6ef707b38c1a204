package config

// Environment variable names.
const (
	EnvLogLevel       = "TURNOCALL_LOG_LEVEL"
	EnvLogFile        = "TURNOCALL_LOG_FILE"
	EnvDSN            = "TURNOCALL_DB_DSN"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvBroadcast      = "TURNOCALL_BROADCAST"
	EnvBroadcastURL   = "TURNOCALL_BROADCAST_URL"
	EnvChannel        = "TURNOCALL_CHANNEL"
	EnvDeviceID       = "TURNOCALL_DEVICE_ID"
	EnvSpeech         = "TURNOCALL_SPEECH"
	EnvLanguage       = "TURNOCALL_LANGUAGE"
	EnvGender         = "TURNOCALL_VOICE_GENDER"
	EnvVoice          = "TURNOCALL_VOICE"
	EnvAzureKey       = "AZURE_SPEECH_KEY"
	EnvAzureRegion    = "AZURE_SPEECH_REGION"
	EnvCacheDir       = "TURNOCALL_CACHE_DIR"
	EnvInitTimeout    = "TURNOCALL_SPEECH_INIT_TIMEOUT"
	EnvWatchdog       = "TURNOCALL_SPEECH_WATCHDOG"
	EnvDedupWindow    = "TURNOCALL_DEDUP_WINDOW"
	EnvSpeakTimeout   = "TURNOCALL_SPEAK_TIMEOUT"
	EnvDisplayAddr    = "TURNOCALL_DISPLAY_ADDR"
	EnvDisplayTitle   = "TURNOCALL_DISPLAY_TITLE"
	EnvOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure   = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvOTLPServiceKey = "OTEL_SERVICE_NAME"
)

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var err error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" && err == nil {
			*dst, err = parseBool(key, v)
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" && err == nil {
			*dst, err = parseDuration(key, v)
		}
	}

	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFile, &c.Log.File)

	str(EnvDatabaseURL, &c.Database.DSN)
	str(EnvDSN, &c.Database.DSN)

	str(EnvBroadcast, &c.Broadcast.Backend)
	str(EnvBroadcastURL, &c.Broadcast.URL)
	str(EnvChannel, &c.Broadcast.Channel)
	str(EnvDeviceID, &c.Broadcast.DeviceID)

	boolean(EnvSpeech, &c.Speech.Enabled)
	str(EnvLanguage, &c.Speech.Language)
	str(EnvGender, &c.Speech.Gender)
	str(EnvVoice, &c.Speech.Voice)
	str(EnvAzureKey, &c.Speech.AzureKey)
	str(EnvAzureRegion, &c.Speech.AzureRegion)
	str(EnvCacheDir, &c.Speech.CacheDir)
	duration(EnvInitTimeout, &c.Speech.InitTimeout)
	duration(EnvWatchdog, &c.Speech.Watchdog)

	duration(EnvDedupWindow, &c.Announce.DedupWindow)
	duration(EnvSpeakTimeout, &c.Announce.SpeakTimeout)

	str(EnvDisplayAddr, &c.Display.Addr)
	str(EnvDisplayTitle, &c.Display.Title)

	str(EnvOTLPEndpoint, &c.Telemetry.Endpoint)
	boolean(EnvOTLPInsecure, &c.Telemetry.Insecure)
	str(EnvOTLPServiceKey, &c.Telemetry.Service)

	return err
}
