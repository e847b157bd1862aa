package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/middleware"
	redisclient "github.com/atelierhq/portal-server-go/internal/redis"
	"github.com/atelierhq/portal-server-go/internal/service"
	"github.com/atelierhq/portal-server-go/internal/sse"
)

// EventsHandler streams live message events over SSE. Clients subscribe to
// one project's channel; the operator dashboard subscribes to a single
// cross-project channel.
type EventsHandler struct {
	broker        *sse.Broker
	accessService *service.AccessService
}

func NewEventsHandler(broker *sse.Broker, accessService *service.AccessService) *EventsHandler {
	return &EventsHandler{
		broker:        broker,
		accessService: accessService,
	}
}

// ProjectEvents serves the portal stream for one project. EventSource
// cannot set headers, so the token arrives as a query parameter and project
// access is validated before subscribing.
func (h *EventsHandler) ProjectEvents(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	_, project, err := h.accessService.ValidateProject(r.Context(), grant.Token.TokenValue, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}

	h.stream(w, r, redisclient.ProjectChannel(project.ID))
}

// OperatorEvents serves the cross-project stream for the operator
// dashboard. Operator auth has already run.
func (h *EventsHandler) OperatorEvents(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, redisclient.OperatorChannel)
}

func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("topic", topic).Msg("sse connection established")

	if err := h.sendEvent(w, flusher, sse.Event{Type: "connected", Data: []byte(`{}`)}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("topic", topic).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("topic", topic).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("topic", topic).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
