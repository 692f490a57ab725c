package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/resumax/internal/advisor"
	"github.com/spigell/resumax/internal/chat"
)

type chatRequest struct {
	Message         string         `json:"message"`
	UserID          string         `json:"userId"`
	LegacyUserID    string         `json:"userID"`
	UserProfile     map[string]any `json:"userProfile"`
	Recommendations map[string]any `json:"recommendations"`
	PreviousChats   []turnPayload  `json:"previousChats"`
}

type chatResponse struct {
	Reply       string        `json:"reply"`
	Response    string        `json:"response"`
	ChatHistory []turnPayload `json:"chatHistory"`
	Timestamp   string        `json:"timestamp"`
}

// turnPayload is a transcript entry as the web client sends it. Older clients
// use "type" with "ai" for model turns and numeric ids.
type turnPayload struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Role      string          `json:"role,omitempty"`
	Type      string          `json:"type,omitempty"`
	Content   string          `json:"content"`
	Timestamp string          `json:"timestamp,omitempty"`
}

var clientTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

func (p turnPayload) turn() chat.Turn {
	role := p.Role
	if role == "" {
		role = p.Type
	}

	t := chat.Turn{
		ID:      rawID(p.ID),
		Role:    chat.ParseRole(role),
		Content: p.Content,
	}
	for _, layout := range clientTimeLayouts {
		if ts, err := time.Parse(layout, p.Timestamp); err == nil {
			t.Timestamp = ts.UTC()
			break
		}
	}
	return t
}

// rawID accepts string and numeric ids. null or a missing id yields "".
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

func toPayload(t chat.Turn) turnPayload {
	typ := "user"
	if t.Role == chat.RoleModel {
		typ = "ai"
	}

	p := turnPayload{
		Role:    string(t.Role),
		Type:    typ,
		Content: t.Content,
	}
	if t.ID != "" {
		p.ID, _ = json.Marshal(t.ID)
	}
	if !t.Timestamp.IsZero() {
		p.Timestamp = t.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return p
}

func toPayloads(turns []chat.Turn) []turnPayload {
	out := make([]turnPayload, 0, len(turns))
	for _, t := range turns {
		out = append(out, toPayload(t))
	}
	return out
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	userID := payload.UserID
	if userID == "" {
		userID = payload.LegacyUserID
	}

	previous := make([]chat.Turn, 0, len(payload.PreviousChats))
	for _, p := range payload.PreviousChats {
		if strings.TrimSpace(p.Content) != "" {
			previous = append(previous, p.turn())
		}
	}

	reply, err := h.advisor.Reply(r.Context(), advisor.Request{
		UserID:          userID,
		Message:         payload.Message,
		RequestID:       middleware.GetReqID(r.Context()),
		Profile:         payload.UserProfile,
		Recommendations: payload.Recommendations,
		PreviousChats:   previous,
	})
	if err != nil {
		var genErr *advisor.GenerationError
		switch {
		case errors.Is(err, advisor.ErrInvalidRequest):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &genErr):
			respondError(w, http.StatusInternalServerError, err.Error())
		default:
			h.logger.Error("chat turn failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{
		Reply:       reply.Text,
		Response:    reply.Text,
		ChatHistory: toPayloads(reply.History),
		Timestamp:   reply.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	turns, err := h.repo.Transcript(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load chat history", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(turns) == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "No chat history found", "userId": userID})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"userId":      userID,
		"chatHistory": toPayloads(turns),
	})
}
