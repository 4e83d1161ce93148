package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

// ForwardedTopics is the fixed set of events the dashboard bridge mirrors
// outbound, per SPEC_FULL.md §6.2's "music status, mode change, DJ queue
// update, commentary text".
var ForwardedTopics = []bus.Topic{
	topics.MusicStatusTopic,
	topics.ModeChanged,
	topics.ModeTransitionFailed,
	topics.DJTrackEndingSoon,
	topics.DJCommentarySkipped,
	topics.LLMCommentaryResponse,
	topics.CommandAckTopic,
	topics.ServiceStatusTopic,
}

// commandRequest is the inbound JSON body for POST /api/command.
type commandRequest struct {
	Line string `json:"line"`
	SID  string `json:"sid"`
}

// eventForwarder is the subset of EventSink the bridge depends on, narrowed
// so tests can substitute a fake in place of a real Redis-backed stream.
type eventForwarder interface {
	Publish(ctx context.Context, topic bus.Topic, payload bus.Payload) error
}

// WebBridge carries dashboard traffic across the bus boundary: inbound HTTP
// commands become RawInputPayload events, and a fixed set of outbound
// events are mirrored to a Pulse-backed Redis stream (SPEC_FULL.md §6.2).
type WebBridge struct {
	svc  *service.Service
	sink eventForwarder
	log  zerolog.Logger

	mu     sync.Mutex
	server *http.Server
}

// New registers the web bridge with reg. addr is the HTTP listen address
// for the inbound command endpoint; sink may be nil to disable outbound
// forwarding (e.g. in tests that only exercise the inbound side).
func New(reg *service.Registry, sink eventForwarder, addr string, log zerolog.Logger) *WebBridge {
	wb := &WebBridge{
		sink: sink,
		log:  log.With().Str("service", "web_bridge").Logger(),
	}

	subs := make([]service.Subscription, 0, len(ForwardedTopics))
	for _, topic := range ForwardedTopics {
		topic := topic
		subs = append(subs, service.Subscription{
			Topic:   topic,
			Handler: func(ctx context.Context, payload bus.Payload) error { return wb.forward(ctx, topic, payload) },
		})
	}

	wb.svc = reg.New(service.Config{Name: "web_bridge", Subscriptions: subs})
	wb.svc.OnStart(func(ctx context.Context) error { return wb.listen(addr) })
	wb.svc.OnStop(func(ctx context.Context) error { return wb.shutdown(ctx) })
	return wb
}

// Service returns the bridge's underlying *service.Service.
func (wb *WebBridge) Service() *service.Service { return wb.svc }

// Router builds the chi router serving the inbound command endpoint,
// rate-limited per SPEC_FULL.md §6.2 via github.com/go-chi/httprate.
func (wb *WebBridge) Router() http.Handler {
	r := chi.NewRouter()
	r.With(httprate.LimitByIP(20, time.Minute)).Post("/api/command", wb.handleCommand)
	return r
}

func (wb *WebBridge) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Line == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"line is required"}`))
		return
	}

	err := wb.svc.Emit(r.Context(), &topics.RawInputPayload{
		Line:   req.Line,
		Source: topics.SourceDashboard,
		SID:    req.SID,
	})
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"dispatch failed"}`))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (wb *WebBridge) forward(ctx context.Context, topic bus.Topic, payload bus.Payload) error {
	if wb.sink == nil {
		return nil
	}
	if err := wb.sink.Publish(ctx, topic, payload); err != nil {
		wb.log.Error().Err(err).Str("topic", string(topic)).Msg("forward to dashboard stream failed")
		return err
	}
	return nil
}

func (wb *WebBridge) listen(addr string) error {
	if addr == "" {
		return nil
	}
	server := &http.Server{Addr: addr, Handler: wb.Router()}
	wb.mu.Lock()
	wb.server = server
	wb.mu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			wb.log.Error().Err(err).Msg("web bridge http server stopped unexpectedly")
		}
	}()
	return nil
}

func (wb *WebBridge) shutdown(ctx context.Context) error {
	wb.mu.Lock()
	server := wb.server
	wb.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
