// Package config loads turnocall settings. Values are layered: built-in
// defaults, then an optional YAML or TOML file, then a .env file, then the
// process environment, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Broadcast backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
	BackendKafka  = "kafka"
	BackendNone   = "none"
)

// Duration is a time.Duration written as "3s" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full set of settings.
type Config struct {
	Log       Log       `yaml:"log" toml:"log"`
	Database  Database  `yaml:"database" toml:"database"`
	Broadcast Broadcast `yaml:"broadcast" toml:"broadcast"`
	Speech    Speech    `yaml:"speech" toml:"speech"`
	Announce  Announce  `yaml:"announce" toml:"announce"`
	Display   Display   `yaml:"display" toml:"display"`
	Telemetry Telemetry `yaml:"telemetry" toml:"telemetry"`
	Rooms     []Room    `yaml:"rooms" toml:"rooms"`
}

type Log struct {
	Level string `yaml:"level" toml:"level"`
	// File receives log output; "stderr" logs to the console.
	File string `yaml:"file" toml:"file"`
}

type Database struct {
	// DSN selects the PostgreSQL store. Empty runs on the in-memory store.
	DSN     string `yaml:"dsn" toml:"dsn"`
	Migrate bool   `yaml:"migrate" toml:"migrate"`
}

type Broadcast struct {
	Backend  string `yaml:"backend" toml:"backend"`
	URL      string `yaml:"url" toml:"url"`
	Channel  string `yaml:"channel" toml:"channel"`
	DeviceID string `yaml:"device_id" toml:"device_id"`
}

type Speech struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled"`
	Language    string   `yaml:"language" toml:"language"`
	Gender      string   `yaml:"gender" toml:"gender"`
	Voice       string   `yaml:"voice" toml:"voice"`
	AzureKey    string   `yaml:"azure_key" toml:"azure_key"`
	AzureRegion string   `yaml:"azure_region" toml:"azure_region"`
	CacheDir    string   `yaml:"cache_dir" toml:"cache_dir"`
	DiskCache   bool     `yaml:"disk_cache" toml:"disk_cache"`
	InitTimeout Duration `yaml:"init_timeout" toml:"init_timeout"`
	Watchdog    Duration `yaml:"watchdog" toml:"watchdog"`
}

type Announce struct {
	DedupWindow  Duration `yaml:"dedup_window" toml:"dedup_window"`
	SpeakTimeout Duration `yaml:"speak_timeout" toml:"speak_timeout"`
}

type Display struct {
	Title string `yaml:"title" toml:"title"`
	// Addr serves the SockJS screen gateway. Empty disables it.
	Addr        string `yaml:"addr" toml:"addr"`
	History     int    `yaml:"history" toml:"history"`
	PauseOnBlur bool   `yaml:"pause_on_blur" toml:"pause_on_blur"`
}

type Telemetry struct {
	// Endpoint of the OTLP gRPC collector. Empty disables tracing.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
	Service  string `yaml:"service" toml:"service"`
}

// Room binds a counter number to a room name and its service.
type Room struct {
	ID          string `yaml:"id" toml:"id"`
	Name        string `yaml:"name" toml:"name"`
	Service     string `yaml:"service" toml:"service"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log: Log{Level: "normal", File: ".turnocall/turnocall.log"},
		Broadcast: Broadcast{
			Backend: BackendMemory,
			Channel: "ticket-announcements",
		},
		Speech: Speech{
			Enabled:     true,
			Language:    "es-MX",
			Gender:      "female",
			Voice:       "es-MX-DaliaNeural",
			CacheDir:    ".turnocall/cache",
			DiskCache:   true,
			InitTimeout: Duration(3 * time.Second),
			Watchdog:    Duration(8 * time.Second),
		},
		Announce: Announce{
			DedupWindow:  Duration(3 * time.Second),
			SpeakTimeout: Duration(30 * time.Second),
		},
		Display: Display{
			Title:   "Turnos",
			History: 6,
		},
		Telemetry: Telemetry{Service: "turnocall"},
	}
}

// Load builds the configuration from defaults, the file at path (if
// non-empty), the given .env files (".env" when none are given; missing
// files are skipped) and the process environment.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}

	dotenv, err := readDotenv(envFiles)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func readDotenv(files []string) (map[string]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	merged := make(map[string]string)
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error

	switch c.Broadcast.Backend {
	case BackendMemory, BackendNone:
	case BackendRedis, BackendNATS, BackendKafka:
		if c.Broadcast.URL == "" {
			errs = append(errs, fmt.Errorf("broadcast backend %s needs a url", c.Broadcast.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown broadcast backend %q", c.Broadcast.Backend))
	}
	if c.Broadcast.Channel == "" {
		errs = append(errs, errors.New("broadcast channel is empty"))
	}

	switch c.Speech.Gender {
	case "female", "male", "":
	default:
		errs = append(errs, fmt.Errorf("unknown voice gender %q", c.Speech.Gender))
	}

	if c.Announce.DedupWindow <= 0 {
		errs = append(errs, errors.New("dedup window must be positive"))
	}
	if c.Speech.InitTimeout <= 0 || c.Speech.Watchdog <= 0 {
		errs = append(errs, errors.New("speech timeouts must be positive"))
	}
	for i, r := range c.Rooms {
		if r.ID == "" || r.Name == "" {
			errs = append(errs, fmt.Errorf("room %d needs an id and a name", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SpeechAvailable reports whether Azure credentials are configured.
func (c Config) SpeechAvailable() bool {
	return c.Speech.Enabled && c.Speech.AzureKey != "" && c.Speech.AzureRegion != ""
}

func parseBool(key, raw string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func parseDuration(key, raw string) (Duration, error) {
	var d Duration
	if err := d.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
