package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bookvoice/internal/pipeline"
)

type pageResponse struct {
	Success        bool   `json:"success"`
	PageNum        int    `json:"page_num"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	AudioAvailable bool   `json:"audio_available"`
	AudioURL       string `json:"audio_url"`
}

func (s *Server) handleProcessPage(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	res, err := sess.Coordinator.GetPageWithPrefetch(r.Context(), page)
	if err != nil {
		s.pageError(w, err)
		return
	}
	if res.State == pipeline.StateError {
		jsonError(w, res.Error, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pageResponse{
		Success:        true,
		PageNum:        res.Index,
		OriginalText:   res.RawText,
		TranslatedText: res.TranslatedText,
		AudioAvailable: res.AudioKey != "",
		AudioURL:       audioURL(sess.ID, res.Index),
	})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	data, err := sess.Coordinator.Audio(r.Context(), page)
	if err != nil {
		if errors.Is(err, pipeline.ErrAudioNotFound) {
			jsonError(w, "Audio not available", http.StatusNotFound)
			return
		}
		s.pageError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=page_%d.mp3", page))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if _, loaded := sess.Coordinator.Loaded(); !loaded {
		jsonError(w, "No book uploaded", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Coordinator.Status())
}

// lookupSession resolves the request's session. The default session always
// exists; a named one must have been created by an upload, load or POST
// /sessions.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	id := sessionID(r)
	if id == pipeline.DefaultSession {
		return s.sessions.GetOrCreate(id), true
	}
	sess := s.sessions.Get(id)
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// pageError maps coordinator errors to HTTP responses.
func (s *Server) pageError(w http.ResponseWriter, err error) {
	var rangeErr *pipeline.RangeError
	switch {
	case errors.Is(err, pipeline.ErrNoDocument):
		jsonError(w, "No book uploaded", http.StatusBadRequest)
	case errors.As(err, &rangeErr):
		jsonError(w, rangeErr.Error(), http.StatusBadRequest)
	default:
		s.log.Error("page request failed", "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		jsonError(w, "invalid page number", http.StatusBadRequest)
		return 0, false
	}
	return page, true
}

func audioURL(session string, page int) string {
	u := fmt.Sprintf("/audio/%d", page)
	if session != pipeline.DefaultSession {
		u += "?session=" + url.QueryEscape(session)
	}
	return u
}
