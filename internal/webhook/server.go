// Package webhook is the HTTP surface of the relay: the messaging
// platform's verification handshake, the inbound event endpoint, health and
// metrics, and the live monitor feed.
package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/whatsline/internal/monitor"
	"github.com/antoniostano/whatsline/internal/notify"
	"github.com/antoniostano/whatsline/internal/observability"
	"github.com/antoniostano/whatsline/internal/relay"
)

// Transport names for the delivery strategy variants.
const (
	TransportPush  = "push"
	TransportTwiML = "twiml"
)

const fallbackApology = "Lo sentimos, ocurrio un problema procesando tu mensaje. " +
	"Intenta nuevamente en unos minutos."

// Config carries the server's settings.
type Config struct {
	// VerifyToken is the shared secret for the GET /webhook handshake.
	VerifyToken string
	// Transport selects the inbound payload shape and reply strategy:
	// TransportPush parses the Cloud API JSON envelope and pushes replies;
	// TransportTwiML parses the form pair and answers inline.
	Transport string
}

// Server handles inbound webhook traffic and hands parsed messages to the
// relay.
type Server struct {
	cfg      Config
	relay    *relay.Relay
	metrics  *observability.Metrics
	hub      *monitor.Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg Config, rel *relay.Relay, metrics *observability.Metrics, hub *monitor.Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		relay:   rel,
		metrics: metrics,
		hub:     hub,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/webhook", s.handleVerify)
	r.Post("/webhook", s.handleEvent)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		s.metrics.Handler().ServeHTTP(w, req)
	})
	r.Get("/ws/monitor", s.handleMonitorWS)
	return r
}

// handleVerify implements the platform's subscription handshake: echo the
// challenge when the mode and token match, 403 otherwise.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.cfg.VerifyToken {
		s.log.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var (
		in  relay.Inbound
		err error
	)
	switch s.cfg.Transport {
	case TransportTwiML:
		in, err = parseForm(r)
		if err != nil {
			s.metrics.InboundEvents.WithLabelValues("dropped").Inc()
			w.WriteHeader(http.StatusOK)
			return
		}
	default:
		in, err = parseMeta(r.Body)
		if errors.Is(err, errUnknownObject) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	}

	out, err := s.relay.HandleInbound(r.Context(), in)
	if err != nil {
		s.respondPipelineError(r.Context(), w, err)
		return
	}

	if s.cfg.Transport == TransportTwiML && len(out.ResponseBody) > 0 {
		s.writeTwiML(w, out.ResponseBody)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// respondPipelineError maps a completion failure to the transport contract:
// push platforms get a 500 so they retry delivery, the synchronous variant
// gets a 200 with a fallback apology so the user is not left hanging.
func (s *Server) respondPipelineError(ctx context.Context, w http.ResponseWriter, err error) {
	if s.cfg.Transport != TransportTwiML {
		http.Error(w, "completion failed", http.StatusInternalServerError)
		return
	}

	ack, renderErr := notify.NewTwiMLNotifier().Send(ctx, notify.Outbound{Text: fallbackApology})
	if renderErr != nil {
		s.log.Error("apology render failed", zap.Error(renderErr))
		w.WriteHeader(http.StatusOK)
		return
	}
	s.writeTwiML(w, ack.Body)
}

func (s *Server) writeTwiML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleMonitorWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(s.upgrader, w, r)
}
