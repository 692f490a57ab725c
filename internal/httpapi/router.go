// Package httpapi exposes the advisor and the user records over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/resumax/internal/advisor"
	"github.com/spigell/resumax/internal/store"
)

const maxBodyBytes = 1 << 20

// Advisor answers a single chat turn.
type Advisor interface {
	Reply(ctx context.Context, req advisor.Request) (*advisor.Reply, error)
}

type Handler struct {
	advisor Advisor
	repo    *store.Repository
	logger  *zap.Logger
}

func New(adv Advisor, repo *store.Repository, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		advisor: adv,
		repo:    repo,
		logger:  log,
	}
}

// Router wires the routes with request ids, logging, panic recovery and CORS.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(recoverer(h.logger))
	r.Use(cors)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/chat", func(r chi.Router) {
		r.Post("/", h.handleChat)
		r.Get("/history", h.handleChatHistory)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", h.handleGetUser)
		r.Post("/", h.handleSaveUser)
		r.Put("/", h.handleUpdateUser)

		r.Get("/resume", h.handleGetResume)
		r.Post("/resume", h.handleSaveResume)
	})

	return r
}
