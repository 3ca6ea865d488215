package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/keeperhq/keeper/internal/embedding"
	"github.com/keeperhq/keeper/internal/llm"
	"github.com/keeperhq/keeper/internal/memory"
	"github.com/keeperhq/keeper/internal/retrieval"
)

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	answer, err := s.assistant.Ask(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

type narrateRequest struct {
	ScriptSummary string `json:"script_summary"`
	CurrentStage  string `json:"current_stage"`
	PlayerAction  string `json:"player_action"`
}

func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	var req narrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerAction == "" {
		s.respondError(w, http.StatusBadRequest, "player_action is required")
		return
	}
	narration, err := s.assistant.Narrate(r.Context(), req.ScriptSummary, req.CurrentStage, req.PlayerAction)
	if err != nil {
		s.logger.Error("narrate failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"narration": narration})
}

type triggerSummaryRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleTriggerSummary(w http.ResponseWriter, r *http.Request) {
	var req triggerSummaryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	summary, err := s.summarizer.Trigger(r.Context(), req.Force)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	var (
		summaries interface{}
		err       error
	)
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		summaries, err = s.summarizer.BySession(sessionID)
	} else {
		summaries, err = s.summarizer.All()
	}
	if err != nil {
		s.logger.Error("list summaries failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"summaries": summaries})
}

func (s *Server) handleCompleteStory(w http.ResponseWriter, r *http.Request) {
	story, err := s.composer.GenerateCompleteStory(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, story)
}

func (s *Server) handleSessionStory(w http.ResponseWriter, r *http.Request) {
	story, err := s.composer.GenerateSessionStory(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, story)
}

func (s *Server) handleLatestStory(w http.ResponseWriter, r *http.Request) {
	story, err := s.composer.LatestStory()
	if err != nil {
		s.logger.Error("latest story failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if story == nil {
		s.respondError(w, http.StatusNotFound, "no stories archived")
		return
	}
	s.respondJSON(w, http.StatusOK, story)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.AllSessionsInfo()
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
}

type startSessionRequest struct {
	ScriptSummary string `json:"script_summary"`
	CurrentStage  string `json:"current_stage"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	id, err := s.store.EndCurrentAndStartNew(req.ScriptSummary, req.CurrentStage)
	if err != nil {
		s.logger.Error("start session failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.composer.Stats()
	if err != nil {
		s.logger.Error("memory stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.composer.ClearAll(); err != nil {
		s.logger.Error("clear memory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondFailure maps domain errors to status codes: declined memory
// operations are conflicts the caller can resolve, unavailable backends are
// 503, everything else is a plain server error.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	switch {
	case memory.IsDeclined(err):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, retrieval.ErrIndexUnavailable),
		errors.Is(err, embedding.ErrEmbeddingUnavailable),
		errors.Is(err, llm.ErrGenerationUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
