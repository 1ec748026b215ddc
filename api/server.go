// Package api exposes the conversation read/write REST path. The write
// path is the single producer for the relay: a message is validated,
// membership-checked, persisted through the directory, and only then
// handed to the dispatcher.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"clipstream-chat-server/auth"
	"clipstream-chat-server/domain"
)

const maxContentLength = 500

type Server struct {
	directory  domain.Directory
	dispatcher domain.Dispatcher
	verifier   *auth.Verifier
}

func NewServer(directory domain.Directory, dispatcher domain.Dispatcher, verifier *auth.Verifier) *Server {
	return &Server{
		directory:  directory,
		dispatcher: dispatcher,
		verifier:   verifier,
	}
}

// Register mounts the conversation routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /conversations", s.withAuth(s.listConversations))
	mux.Handle("GET /conversations/with/{userId}", s.withAuth(s.findOrCreateConversation))
	mux.Handle("GET /conversations/{id}", s.withAuth(s.checkConversation))
	mux.Handle("GET /conversation-messages/{id}", s.withAuth(s.listMessages))
	mux.Handle("POST /send-message/{id}", s.withAuth(s.sendMessage))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withAuth(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r, userID)
	})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request, userID string) {
	previews, err := s.directory.ListConversations(r.Context(), userID)
	if err != nil {
		s.internalError(w, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, previews)
}

func (s *Server) findOrCreateConversation(w http.ResponseWriter, r *http.Request, userID string) {
	otherID := r.PathValue("userId")
	if otherID == "" || otherID == userID {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	conv, err := s.directory.FindOrCreateConversation(r.Context(), userID, otherID)
	if err != nil {
		s.internalError(w, "find or create conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": conv.ID})
}

func (s *Server) checkConversation(w http.ResponseWriter, r *http.Request, userID string) {
	preview, err := s.directory.GetConversation(r.Context(), r.PathValue("id"), userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	case errors.Is(err, domain.ErrNotMember):
		writeError(w, http.StatusForbidden, "not a member of this conversation")
		return
	case err != nil:
		s.internalError(w, "check conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")

	member, err := s.directory.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		s.internalError(w, "membership check", err)
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this conversation")
		return
	}

	messages, err := s.directory.ListMessages(r.Context(), conversationID)
	if err != nil {
		s.internalError(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Content == "" || utf8.RuneCountInString(body.Content) > maxContentLength {
		writeError(w, http.StatusBadRequest, "content must be 1 to 500 characters")
		return
	}

	member, err := s.directory.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		s.internalError(w, "membership check", err)
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "cannot post to this conversation")
		return
	}

	message, err := s.directory.AppendMessage(r.Context(), conversationID, userID, body.Content)
	if err != nil {
		s.internalError(w, "append message", err)
		return
	}

	// persistence succeeded; delivery is best-effort from here on
	if payload, err := json.Marshal(message); err == nil {
		s.dispatcher.Dispatch(conversationID, payload)
	} else {
		slog.Error("marshal for dispatch failed", "conversationId", conversationID, "error", err)
	}

	writeJSON(w, http.StatusCreated, message)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
