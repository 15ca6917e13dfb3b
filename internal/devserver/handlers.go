package devserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/chatline/internal/chatapi"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DeleteConversationsResponse is returned by the bulk delete endpoint.
type DeleteConversationsResponse struct {
	OK      bool `json:"ok"`
	Deleted int  `json:"deleted"`
}

// DeleteMessageResponse is returned by the single-message delete endpoint.
type DeleteMessageResponse struct {
	OK        bool       `json:"ok"`
	DeletedID chatapi.ID `json:"deleted_id"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeStoreError maps store errors to status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrMessageNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error(), "")
	case errors.Is(err, ErrSelfConversation), errors.Is(err, ErrEmptyBody):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	default:
		s.logger.Error("store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(currentUser(r).ID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleLoadThread(w http.ResponseWriter, r *http.Request) {
	convID, ok := parseID(chatapi.ID(chi.URLParam(r, "id")))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found", "")
		return
	}
	th, err := s.store.LoadThread(currentUser(r).ID, convID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OtherUserID chatapi.ID `json:"other_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid other_user_id", err.Error())
		return
	}
	otherID, ok := parseID(req.OtherUserID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid other_user_id", "")
		return
	}
	th, err := s.store.StartConversation(currentUser(r).ID, otherID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleDeleteConversations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationIDs []chatapi.ID `json:"conversation_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	// Unparseable ids are skipped rather than rejected.
	ids := make([]int64, 0, len(req.ConversationIDs))
	for _, raw := range req.ConversationIDs {
		if id, ok := parseID(raw); ok {
			ids = append(ids, id)
		}
	}
	n, err := s.store.DeleteConversations(currentUser(r).ID, ids)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteConversationsResponse{OK: true, Deleted: n})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID chatapi.ID `json:"conversation_id"`
		Body           string     `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	convID, ok := parseID(req.ConversationID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid conversation_id", "")
		return
	}
	msg, err := s.store.SendMessage(currentUser(r).ID, convID, req.Body)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	raw := chatapi.ID(chi.URLParam(r, "id"))
	msgID, ok := parseID(raw)
	if !ok {
		writeError(w, http.StatusNotFound, "message not found", "")
		return
	}
	if err := s.store.DeleteMessage(currentUser(r).ID, msgID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteMessageResponse{OK: true, DeletedID: raw})
}
