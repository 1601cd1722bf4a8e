// Package api exposes the relay over HTTP: REST routes and the WebSocket upgrade.
package api

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/services"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	log          *slog.Logger
	chatService  services.IChatService
	historyLimit int
}

// NewRouter wires the HTTP routes to the chat service.
// ws serves the WebSocket upgrade on /ws.
func NewRouter(log *slog.Logger, chatService services.IChatService, ws http.Handler,
	allowedOrigins []string, historyLimit int) http.Handler {
	h := &Handler{log: log, chatService: chatService, historyLimit: historyLimit}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Post("/token", h.registerToken)
		api.Get("/messages", h.listMessages)
		api.Delete("/messages/{id}", h.deleteMessage)
		api.Get("/users", h.listUsers)
	})
	r.Handle("/ws", ws)
	return r
}

type tokenResponse struct {
	OK   bool      `json:"ok"`
	User chat.User `json:"user"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) registerToken(w http.ResponseWriter, r *http.Request) {
	var cmd chat.RegisterTokenCommand
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&cmd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := h.chatService.RegisterToken(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{OK: true, User: user})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.historyLimit)
	}
	messages, err := h.chatService.GetMessages(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	respondJSON(w, http.StatusOK, messages)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.DeleteMessage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, deleteResponse{Success: true})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.chatService.GetUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []chat.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

// fail maps domain errors to HTTP statuses. Storage details never reach the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondError(w, status, "Server error")
		return
	}
	respondError(w, status, err.Error())
}

func StatusOf(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrMessageNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
