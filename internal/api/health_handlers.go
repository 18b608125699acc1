package api

import (
	"net/http"

	"github.com/listenupapp/listenup-reader/internal/http/response"
)

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status        string `json:"status"`
	SpeechEngine  string `json:"speech_engine"`
	PlaybackState string `json:"playback_state"`
	EventClients  int    `json:"event_clients"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		SpeechEngine:  s.engine,
		PlaybackState: string(s.player.Snapshot().State),
	}
	if s.events != nil {
		resp.EventClients = s.events.ClientCount()
	}
	response.Success(w, resp, s.logger)
}
