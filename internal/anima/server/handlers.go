package server

import (
	"net/http"
	"strconv"

	"github.com/bdobrica/Anima/common/version"
	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/observability"
)

type healthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Error   string `json:"error,omitempty"`
}

// handleHealth always answers 200; Ready says whether chat will work.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Ready:   s.backend.Ready(),
		Version: version.Version,
		Commit:  version.GitCommit,
	}
	if err := s.backend.RuntimeErr(); err != nil {
		resp.Error = app.UserMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.backend.ChatHistory(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	mems, err := s.backend.SearchMemories(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mems)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "memory id must be a positive integer")
		return
	}
	if err := s.backend.DeleteMemory(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingRequest struct {
	Value string `json:"value"`
}

type settingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, err := s.backend.Setting(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: v})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req settingRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.backend.SetSetting(r.Context(), key, req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.backend.Setting(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: v})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	traits, err := s.backend.ProfileTraits(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, traits)
}

type traitRequest struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

func (s *Server) handleAddTrait(w http.ResponseWriter, r *http.Request) {
	var req traitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Category == "" || req.Content == "" {
		badRequest(w, "category and content are required")
		return
	}
	if err := s.backend.AddProfileTrait(r.Context(), req.Category, req.Content); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleClearProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ClearProfile(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req app.ChatRequest
	if !decode(w, r, &req) {
		return
	}
	reply, err := s.backend.SendMessage(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.RunSleepCycle(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type exportRequest struct {
	Path string `json:"path"`
}

type exportResponse struct {
	Path string `json:"path"`
	OK   bool   `json:"ok"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := s.backend.ExportDatabase(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Path: req.Path, OK: ok})
}

func (s *Server) handleExportBrain(w http.ResponseWriter, r *http.Request) {
	doc, err := s.backend.ExportBrain(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.FactoryReset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.WithTrace(r.Context(), s.logger).Info("server: factory reset done")
	w.WriteHeader(http.StatusNoContent)
}

type greetingResponse struct {
	Greeting string `json:"greeting"`
}

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	text, err := s.backend.ProactiveGreeting(r.Context(), r.URL.Query().Get("time_of_day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, greetingResponse{Greeting: text})
}
