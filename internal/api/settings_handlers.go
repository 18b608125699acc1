package api

import (
	"net/http"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/http/response"
	"github.com/listenupapp/listenup-reader/internal/sse"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.reader.Settings(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, settings, s.logger)
}

// handleUpdateSettings replaces the settings record. Omitted fields take their
// defaults; an omitted chapter keeps the stored reading position.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	next := domain.NewSettings()
	if err := s.decodeJSON(w, r, next); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	saved, err := s.reader.UpdateSettings(r.Context(), next)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.emit(sse.NewSettingsUpdatedEvent(saved, false))
	response.Success(w, saved, s.logger)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.ResetSettings(r.Context()); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	defaults := domain.NewSettings()
	s.emit(sse.NewSettingsUpdatedEvent(defaults, true))
	response.Success(w, defaults, s.logger)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := s.reader.ListChapters(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if chapters == nil {
		chapters = []domain.ChapterSummary{}
	}

	s.emit(sse.NewChaptersListedEvent(chapters))
	response.Success(w, map[string]any{"chapters": chapters}, s.logger)
}

func (s *Server) emit(evt sse.Event) {
	if s.events != nil {
		s.events.Emit(evt)
	}
}
