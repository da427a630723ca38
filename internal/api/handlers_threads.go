package api

import (
	"net/http"

	"bothub/internal/hub"
)

// ---- 讨论串 ----

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var in hub.CreateThreadInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	thread, err := s.hub.CreateThread(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	thread, err := s.hub.GetThread(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in hub.UpdateThreadInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	thread, err := s.hub.UpdateThread(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.hub.DeleteThread(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.hub.ListThreads(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

// ---- 消息 ----

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var in hub.CreateMessageInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	message, err := s.hub.CreateMessage(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	message, err := s.hub.GetMessage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.hub.ListMessages(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
