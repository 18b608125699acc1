package api

import (
	"net/http"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/http/response"
	"github.com/listenupapp/listenup-reader/internal/reader"
)

// OpenChapterRequest opens a chapter in the reader.
type OpenChapterRequest struct {
	ChapterID string `json:"chapter_id" validate:"required"`
}

// ScrollRequest reports the reader's scroll offset.
type ScrollRequest struct {
	Offset *float64 `json:"offset" validate:"required,gte=0"`
}

// ViewResponse describes the open chapter.
type ViewResponse struct {
	reader.ViewState
	Error string `json:"error,omitempty"`
}

// LayoutResponse tells the UI where to scroll after layout.
type LayoutResponse struct {
	Offset  float64 `json:"offset"`
	Applied bool    `json:"applied"`
}

func viewResponse(v *reader.View, withContent bool) ViewResponse {
	state := v.State(withContent)
	resp := ViewResponse{ViewState: state}
	if state.Error != nil {
		resp.Error = errors.UserMessage(state.Error)
	}
	return resp
}

// activeView returns the open view or writes a not found response.
func (s *Server) activeView(w http.ResponseWriter) (*reader.View, bool) {
	v := s.reader.Active()
	if v == nil {
		response.HandleError(w, errors.NotFound("no chapter is open"), s.logger)
		return nil, false
	}
	return v, true
}

func (s *Server) handleOpenChapter(w http.ResponseWriter, r *http.Request) {
	var req OpenChapterRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	v, err := s.reader.Open(req.ChapterID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	// Content loads in the background; the UI polls GET /reader or waits for layout.
	response.JSON(w, http.StatusAccepted, viewResponse(v, false), s.logger)
}

func (s *Server) handleGetReader(w http.ResponseWriter, r *http.Request) {
	v, ok := s.activeView(w)
	if !ok {
		return
	}
	withContent := r.URL.Query().Get("content") != "false"
	response.Success(w, viewResponse(v, withContent), s.logger)
}

func (s *Server) handleLayoutComplete(w http.ResponseWriter, _ *http.Request) {
	v, ok := s.activeView(w)
	if !ok {
		return
	}
	offset, applied := v.LayoutComplete()
	response.Success(w, LayoutResponse{Offset: offset, Applied: applied}, s.logger)
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req ScrollRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	v, ok := s.activeView(w)
	if !ok {
		return
	}
	if err := v.Scroll(*req.Offset); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleCloseReader(w http.ResponseWriter, _ *http.Request) {
	if v := s.reader.Active(); v != nil {
		v.Close()
	}
	response.NoContent(w)
}
