package main

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hammamikhairi/turnocall/internal/announce"
	"github.com/hammamikhairi/turnocall/internal/broadcast"
	"github.com/hammamikhairi/turnocall/internal/config"
	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/feed"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/speech"
	"github.com/hammamikhairi/turnocall/internal/storage"
	"github.com/hammamikhairi/turnocall/internal/storage/postgres"
	"github.com/hammamikhairi/turnocall/internal/telemetry"
)

// ticketStore is what every command needs from the ticket database.
type ticketStore interface {
	domain.RoomDirectory
	domain.TicketQueries
	domain.ChangeSource
	domain.TicketActions
}

// app holds the configuration and the resources a command opened.
type app struct {
	cfg     config.Config
	cfgPath string
	flags   *pflag.FlagSet
	log     *logger.Logger
	closers []func()
}

// newApp loads the layered configuration for cmd and opens the log.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString(config.FlagConfig)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, cfgPath: path, flags: cmd.Flags()}
	a.log = logger.New(logger.ParseLevel(cfg.Log.Level), a.logOutput())
	a.onClose(func() { _ = a.log.Sync() })
	return a, nil
}

// reload re-reads the configuration after the config file changed. Only
// the log level is applied to a running process.
func (a *app) reload() {
	cfg, err := config.Load(a.cfgPath)
	if err == nil {
		err = cfg.ApplyFlags(a.flags)
	}
	if err != nil {
		a.log.Warn("config reload: %v (keeping current settings)", err)
		return
	}
	if cfg.Log.Level != a.cfg.Log.Level {
		a.log.SetLevel(logger.ParseLevel(cfg.Log.Level))
		a.log.Info("log level now %s", cfg.Log.Level)
	}
	a.cfg.Log.Level = cfg.Log.Level
}

// logOutput directs logs to the configured file so the board keeps the
// terminal. Falls back to stderr.
func (a *app) logOutput() io.Writer {
	var out io.Writer = os.Stderr
	if file := a.cfg.Log.File; file != "" && file != "stderr" {
		if dir := filepath.Dir(file); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", file, err)
		} else {
			out = f
			a.onClose(func() { f.Close() })
		}
	}

	// Third-party packages that use the standard logger write to the
	// same place.
	stdlog.SetOutput(out)
	stdlog.SetFlags(stdlog.Ltime)
	return out
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Close releases everything in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ── Resources ────────────────────────────────────────────────────

func (a *app) startTelemetry(ctx context.Context) {
	shutdown := telemetry.Setup(ctx, telemetry.Options{
		Service:  a.cfg.Telemetry.Service,
		Endpoint: a.cfg.Telemetry.Endpoint,
		Insecure: a.cfg.Telemetry.Insecure,
		DeviceID: a.cfg.Broadcast.DeviceID,
	}, a.log.Named("otel"))
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	})
}

// openStore connects to PostgreSQL when a DSN is configured and to a
// process-local memory store otherwise.
func (a *app) openStore(ctx context.Context) (ticketStore, error) {
	if a.cfg.Database.DSN == "" {
		s := storage.NewMemoryStore(a.log.Named("store"))
		rooms := a.cfg.Rooms
		if len(rooms) == 0 {
			rooms = demoRooms
			a.log.Info("no rooms configured, using demo rooms")
		}
		for _, r := range rooms {
			s.AddRoom(roomOf(r))
		}
		a.log.Warn("using the in-memory ticket store; calls stay in this process")
		return s, nil
	}

	s, err := postgres.Open(ctx, a.cfg.Database.DSN, a.log.Named("store"))
	if err != nil {
		return nil, err
	}
	a.onClose(s.Close)
	if a.cfg.Database.Migrate {
		if err := a.migrate(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *app) migrate(ctx context.Context, s *postgres.Store) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	for _, r := range a.cfg.Rooms {
		if err := s.UpsertRoom(ctx, roomOf(r)); err != nil {
			return fmt.Errorf("room %s: %w", r.ID, err)
		}
	}
	return nil
}

var demoRooms = []config.Room{
	{ID: "1", Name: "Admisión", Service: "A", ServiceName: "Admisión"},
	{ID: "3", Name: "Consultorio 3", Service: "C", ServiceName: "Consulta"},
	{ID: "5", Name: "Enfermería", Service: "E", ServiceName: "Enfermería"},
	{ID: "9", Name: "Sala de Rayos X", Service: "RX", ServiceName: "Rayos X"},
}

func roomOf(r config.Room) domain.Room {
	return domain.Room{
		ID:      r.ID,
		Name:    r.Name,
		Service: domain.Service{Code: r.Service, Name: r.ServiceName},
	}
}

// openBackend connects the configured broadcast medium. A nil backend
// means broadcast is unsupported on this machine.
func (a *app) openBackend(ctx context.Context) (broadcast.Backend, error) {
	log := a.log.Named("broadcast")
	var (
		b   broadcast.Backend
		err error
	)
	switch a.cfg.Broadcast.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendRedis:
		b, err = broadcast.NewRedisBackend(ctx, a.cfg.Broadcast.URL, log)
	case config.BackendNATS:
		b, err = broadcast.NewNATSBackend(a.cfg.Broadcast.URL, log)
	case config.BackendKafka:
		b, err = broadcast.NewKafkaBackend(broadcast.ParseBrokers(a.cfg.Broadcast.URL), "turnocall-display", log)
	default:
		b = broadcast.NewBus(log)
	}
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = b.Close() })
	return b, nil
}

// openTransport wraps the backend. A backend that cannot connect leaves
// the transport unsupported so announcements ride the change feed alone.
func (a *app) openTransport(ctx context.Context) *broadcast.Transport {
	backend, err := a.openBackend(ctx)
	if err != nil {
		a.log.Warn("broadcast unavailable: %v", err)
		backend = nil
	}
	t, err := broadcast.NewTransport(ctx, backend, a.log.Named("broadcast"),
		broadcast.WithChannel(a.cfg.Broadcast.Channel),
		broadcast.WithDeviceID(a.cfg.Broadcast.DeviceID),
	)
	if err != nil {
		a.log.Warn("broadcast listen failed: %v", err)
		t, _ = broadcast.NewTransport(ctx, nil, a.log.Named("broadcast"))
	}
	if t.Supported() {
		a.log.Info("broadcast: device %s on %q", t.DeviceID(), a.cfg.Broadcast.Channel)
	}
	return t
}

// silent returns a NoOp speaker that reports on close how many
// announcements went unspoken.
func (a *app) silent(reason string, log *logger.Logger) *speech.NoOp {
	n := speech.NewNoOp(reason, log)
	a.onClose(func() {
		if d := n.Dropped(); d > 0 {
			log.Info("%d announcements shown without speech (%s)", d, reason)
		}
	})
	return n
}

// openSpeaker builds the speech engine. It returns nil when speech is
// switched off, and a no-op speaker when the machine cannot speak, so
// the coordinator tells the user once.
func (a *app) openSpeaker(ctx context.Context) (domain.Speaker, *speech.Engine) {
	log := a.log.Named("speech")
	sc := a.cfg.Speech
	if !sc.Enabled {
		return nil, nil
	}
	if !a.cfg.SpeechAvailable() {
		log.Info("speech unavailable: set %s and %s to enable", config.EnvAzureKey, config.EnvAzureRegion)
		return a.silent("no Azure Speech credentials", log), nil
	}

	player, err := speech.NewPlayer(log)
	if err != nil {
		log.Error("audio player init failed, speech disabled: %v", err)
		return a.silent("no audio device", log), nil
	}
	client := speech.NewAzureClient(sc.AzureKey, sc.AzureRegion, log, speech.WithAzureVoice(sc.Voice))
	var cacheOpts []speech.CacheOption
	if sc.CacheDir != "" {
		cacheOpts = append(cacheOpts, speech.WithCacheDir(sc.CacheDir, sc.DiskCache))
	}
	cache := speech.NewAudioCache(log, cacheOpts...)
	platform := speech.NewAzurePlatform(client, player, cache, log)
	if err := platform.Refresh(ctx); err != nil {
		log.Warn("voice list unavailable: %v", err)
	}

	engine := speech.NewEngine(platform, log,
		speech.WithLanguage(sc.Language),
		speech.WithGender(speech.Gender(sc.Gender)),
		speech.WithInitTimeout(sc.InitTimeout.Std()),
		speech.WithWatchdog(sc.Watchdog.Std()),
	)
	a.onClose(engine.Close)

	go func() {
		if err := engine.Initialize(ctx); err != nil {
			log.Warn("speech init: %v", err)
		}
	}()
	return engine, engine
}

// pipelineParts are the sinks a command plugs into its pipeline.
type pipelineParts struct {
	display  domain.DisplaySink
	toaster  domain.Toaster
	speaker  domain.Speaker
	listener bool
	views    feed.Invalidator
}

// openPipeline wires coordinator, transport and, when asked, the change
// feed listener over store, then starts it.
func (a *app) openPipeline(ctx context.Context, store ticketStore, parts pipelineParts) (*announce.Pipeline, *feed.Listener, error) {
	opts := []announce.Option{
		announce.WithDedupWindow(a.cfg.Announce.DedupWindow.Std()),
		announce.WithSpeakTimeout(a.cfg.Announce.SpeakTimeout.Std()),
	}
	if parts.toaster != nil {
		opts = append(opts, announce.WithToaster(parts.toaster))
	}
	coord := announce.NewCoordinator(parts.display, parts.speaker, a.log.Named("announce"), opts...)

	var feedOpts []feed.Option
	if parts.views != nil {
		feedOpts = append(feedOpts, feed.WithInvalidator(parts.views))
	}
	resolver := feed.NewListener(store, store, coord, a.log.Named("feed"), feedOpts...)

	var listener *feed.Listener
	if parts.listener {
		listener = resolver
	}

	p := announce.NewPipeline(coord, a.openTransport(ctx), listener, a.log.Named("pipeline"))
	if err := p.Start(ctx); err != nil {
		p.Close()
		return nil, nil, err
	}
	a.onClose(p.Close)
	return p, resolver, nil
}
