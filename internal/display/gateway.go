package display

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/phrase"
)

// Compile-time interface checks.
var (
	_ domain.DisplaySink = (*Gateway)(nil)
	_ domain.Toaster     = (*Gateway)(nil)
)

// DefaultGatewayPrefix is the SockJS mount point.
const DefaultGatewayPrefix = "/displays"

const clientBuffer = 16

// Envelope is one frame sent to browser screens.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ScreenAnnouncement is the payload of an "announcement" envelope.
type ScreenAnnouncement struct {
	TicketID                string `json:"ticket_id,omitempty"`
	TicketNumber            string `json:"ticket_number"`
	Spoken                  string `json:"spoken"`
	Text                    string `json:"text"`
	Destination             string `json:"destination"`
	RedirectedFrom          string `json:"redirected_from,omitempty"`
	OriginalDestinationName string `json:"original_destination,omitempty"`
	MessageID               string `json:"message_id,omitempty"`
}

// subscribeMessage is sent by a screen to follow one destination only.
type subscribeMessage struct {
	Action      string `json:"action"`
	Destination string `json:"destination"`
}

type screen struct {
	id          string
	send        chan []byte
	destination string
}

// session is the part of a SockJS session the gateway uses.
type session interface {
	Recv() (string, error)
	Send(string) error
}

// Gateway fans display events out to browser screens over SockJS.
type Gateway struct {
	log    *logger.Logger
	prefix string
	now    func() time.Time

	mu      sync.RWMutex
	screens map[string]*screen

	server *http.Server
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithPrefix sets the SockJS mount point.
func WithPrefix(prefix string) GatewayOption {
	return func(g *Gateway) {
		g.prefix = "/" + strings.Trim(prefix, "/")
	}
}

// NewGateway creates a gateway. Serve it with Handler or ListenAndServe.
func NewGateway(log *logger.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		log:     log,
		prefix:  DefaultGatewayPrefix,
		now:     time.Now,
		screens: make(map[string]*screen),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the HTTP handler: the SockJS endpoint under the prefix,
// /healthz and /screens, traced by otelhttp.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/screens", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"screens": g.Screens()})
	})
	r.Handle(g.prefix+"/*", sockjs.NewHandler(g.prefix, sockjs.DefaultOptions, func(s sockjs.Session) {
		g.serve(s)
	}))

	return otelhttp.NewHandler(r, "turnocall-display")
}

// ListenAndServe serves the gateway on addr until ctx is done.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	g.server = &http.Server{
		Addr:        addr,
		Handler:     g.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Info("gateway: listening on %s%s", addr, g.prefix)
		errCh <- g.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	}
}

// serve runs one screen connection until it drops.
func (g *Gateway) serve(s session) {
	sc := &screen{id: uuid.NewString(), send: make(chan []byte, clientBuffer)}
	g.register(sc)
	defer g.unregister(sc)

	go func() {
		for msg := range sc.send {
			if err := s.Send(string(msg)); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := s.Recv()
		if err != nil {
			return
		}
		var sub subscribeMessage
		if err := json.Unmarshal([]byte(msg), &sub); err != nil {
			continue
		}
		switch sub.Action {
		case "subscribe":
			g.follow(sc, sub.Destination)
		case "unsubscribe":
			g.follow(sc, "")
		}
	}
}

func (g *Gateway) register(sc *screen) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.screens[sc.id] = sc
	g.log.Debug("gateway: screen %s connected (%d total)", sc.id, len(g.screens))
}

func (g *Gateway) unregister(sc *screen) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.screens, sc.id)
	close(sc.send)
	g.log.Debug("gateway: screen %s disconnected", sc.id)
}

func (g *Gateway) follow(sc *screen, destination string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sc.destination = destination
}

// Screens returns the number of connected screens.
func (g *Gateway) Screens() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.screens)
}

// ShowAnnouncement sends ev to every screen following its destination
// (or following everything).
func (g *Gateway) ShowAnnouncement(ev domain.AnnouncementEvent) {
	payload, err := json.Marshal(ScreenAnnouncement{
		TicketID:     ev.TicketID,
		TicketNumber: ev.TicketNumber,
		Spoken:       phrase.FormatTicketNumber(ev.TicketNumber),
		Text: phrase.ComposeAnnouncementText(ev.TicketNumber, ev.DestinationName,
			ev.RedirectedFromService, ev.OriginalDestinationName),
		Destination:             ev.DestinationName,
		RedirectedFrom:          ev.RedirectedFromService,
		OriginalDestinationName: ev.OriginalDestinationName,
		MessageID:               ev.MessageID,
	})
	if err != nil {
		g.log.Error("gateway: encode announcement: %v", err)
		return
	}
	g.broadcast("announcement", payload, ev.DestinationName)
}

// Toast sends a transient message to every screen.
func (g *Gateway) Toast(message string) {
	payload, _ := json.Marshal(map[string]string{"message": message})
	g.broadcast("toast", payload, "")
}

func (g *Gateway) broadcast(kind string, payload []byte, destination string) {
	frame, err := json.Marshal(Envelope{Type: kind, Payload: payload, CreatedAt: g.now()})
	if err != nil {
		g.log.Error("gateway: encode envelope: %v", err)
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, sc := range g.screens {
		if destination != "" && sc.destination != "" && sc.destination != destination {
			continue
		}
		select {
		case sc.send <- frame:
		default:
			g.log.Warn("gateway: drop %s for screen %s", kind, sc.id)
		}
	}
}
