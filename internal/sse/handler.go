package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// retryMillis tells EventSource clients how long to wait before reconnecting.
	retryMillis = 3000
	// writeGrace bounds how long a single frame may take to reach a stalled client.
	writeGrace = 60 * time.Second
)

// Handler streams events at GET /api/v1/events. The optional topics query
// parameter narrows the stream, e.g. ?topics=playback,settings.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler returns an http.Handler streaming the manager's events.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("response does not support streaming", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(parseTopics(r.URL.Query().Get("topics"))...)
	if err != nil {
		h.logger.Error("SSE client registration failed", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))

	hello := map[string]string{"client_id": client.ID}
	if _, err := fmt.Fprintf(w, "retry: %d\n", retryMillis); err != nil {
		return
	}
	if err := h.write(w, rc, frame{event: "connected", data: hello}); err != nil {
		log.Warn("could not send greeting", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case evt, ok := <-client.EventChan:
			if !ok {
				log.Info("stream closed by manager")
				return
			}
			if err := h.write(w, rc, frame{id: evt.ID, event: string(evt.Type), data: evt}); err != nil {
				log.Info("client went away mid-write")
				return
			}
		case <-client.Done:
			log.Info("stream closed by manager")
			return
		case <-r.Context().Done():
			log.Info("client disconnected")
			return
		}
	}
}

type frame struct {
	id    uint64
	event string
	data  any
}

// write encodes f as
//
//	id: <n>          (omitted when zero)
//	event: <type>
//	data: <json>
//
// followed by a blank line, then flushes and pushes the write deadline out.
func (h *Handler) write(w io.Writer, rc *http.ResponseController, f frame) error {
	payload, err := json.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", f.event, err)
	}

	var b strings.Builder
	if f.id != 0 {
		fmt.Fprintf(&b, "id: %d\n", f.id)
	}
	fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", f.event, payload)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	if err := rc.SetWriteDeadline(time.Now().Add(writeGrace)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("write deadline not applied", slog.String("error", err.Error()))
	}
	return nil
}

// parseTopics splits a comma-separated topic list, ignoring blanks.
func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
