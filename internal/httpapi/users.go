package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spigell/resumax/internal/store"
)

type userPayload struct {
	FormData            map[string]any `json:"formData"`
	Recommendations     map[string]any `json:"recommendations"`
	CompletedActivities map[string]any `json:"completedActivities"`
}

type resumePayload struct {
	ResumeText      string         `json:"resumeText"`
	Recommendations map[string]any `json:"recommendations"`
}

func (p userPayload) document() *store.UserData {
	return &store.UserData{
		FormData:            orEmpty(p.FormData),
		Recommendations:     orEmpty(p.Recommendations),
		CompletedActivities: orEmpty(p.CompletedActivities),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	doc, err := h.repo.UserData(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "No user data found", "userId": userID})
		return
	}
	if err != nil {
		h.storageError(w, "load user data", userID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"message": "User data found", "userId": userID, "data": doc})
}

// handleSaveUser creates or replaces the user-data record.
func (h *Handler) handleSaveUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var payload userPayload
	if err := decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	doc := payload.document()
	if err := h.repo.SaveUserData(r.Context(), userID, doc); err != nil {
		h.storageError(w, "save user data", userID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"message": "User data saved successfully", "userId": userID, "data": doc})
}

// handleUpdateUser replaces an existing user-data record and refuses to
// create one.
func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var payload userPayload
	if err := decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.repo.UserData(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, map[string]string{"message": "No user data found", "userId": userID})
			return
		}
		h.storageError(w, "load user data", userID, err)
		return
	}

	if err := h.repo.SaveUserData(r.Context(), userID, payload.document()); err != nil {
		h.storageError(w, "update user data", userID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "User data updated successfully", "userId": userID})
}

func (h *Handler) handleGetResume(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	doc, err := h.repo.Resume(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "No resume found", "userId": userID})
		return
	}
	if err != nil {
		h.storageError(w, "load resume", userID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"userId": userID, "data": doc})
}

func (h *Handler) handleSaveResume(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var payload resumePayload
	if err := decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(payload.ResumeText) == "" {
		respondError(w, http.StatusBadRequest, "resumeText is required")
		return
	}

	doc := &store.ResumeData{ResumeText: payload.ResumeText, Recommendations: orEmpty(payload.Recommendations)}
	if err := h.repo.SaveResume(r.Context(), userID, doc); err != nil {
		h.storageError(w, "save resume", userID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"message": "Resume saved successfully", "userId": userID, "data": doc})
}

func (h *Handler) storageError(w http.ResponseWriter, action, userID string, err error) {
	h.logger.Error("storage request failed", zap.String("action", action), zap.String("user_id", userID), zap.Error(err))
	respondError(w, http.StatusInternalServerError, action+": "+err.Error())
}
