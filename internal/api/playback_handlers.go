package api

import (
	"context"
	"net/http"

	"github.com/listenupapp/listenup-reader/internal/http/response"
)

// SeekRequest moves playback within the current chapter.
type SeekRequest struct {
	PositionMs *int64 `json:"position_ms" validate:"required,gte=0"`
}

// RateRequest changes the speech rate.
type RateRequest struct {
	Rate float64 `json:"rate" validate:"required,gt=0"`
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, s.player.Snapshot(), s.logger)
}

// handlePlay speaks the chapter open in the reader.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Play(r.Context()); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, s.player.Snapshot(), s.logger)
}

// playbackAction adapts a parameterless driver command to a handler that
// answers with the resulting session.
func (s *Server) playbackAction(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := action(); err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		response.Success(w, s.player.Snapshot(), s.logger)
	}
}

func (s *Server) playbackSkip(skip func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := skip(r.Context()); err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		response.Success(w, s.player.Snapshot(), s.logger)
	}
}

func (s *Server) handleClearQueue(w http.ResponseWriter, _ *http.Request) {
	s.player.ClearQueue()
	response.Success(w, s.player.Snapshot(), s.logger)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if err := s.player.Seek(*req.PositionMs); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, s.player.Snapshot(), s.logger)
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if err := s.player.SetRate(req.Rate); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, s.player.Snapshot(), s.logger)
}
