package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Wyydra/duo/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

type TokenVerifier interface {
	Verify(token string) (domain.ClientID, error)
}

type Options struct {
	PublicBaseURL string
	StaticDir     string
	CORSOrigins   []string
	ICE           ICEConfig
	Metrics       http.Handler
}

type Handler struct {
	Relay  *service.Relay
	Rooms  *service.RoomService
	Hub    *ws.Hub
	Tokens TokenVerifier
	opts   Options
}

func NewHandler(relay *service.Relay, rooms *service.RoomService, hub *ws.Hub, tokens TokenVerifier, opts Options) *Handler {
	return &Handler{
		Relay:  relay,
		Rooms:  rooms,
		Hub:    hub,
		Tokens: tokens,
		opts:   opts,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Join)
	r.Post("/message", h.PostMessage)
	r.Get("/channel", h.ServeChannel)
	r.Get("/rooms/{key}", h.RoomState)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if h.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.Metrics)
	}
	if h.opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(h.opts.StaticDir)))
		r.Handle("/static/*", fs)
	}

	origins := h.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// PostMessage relays the request body as an envelope from user u in room r.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	key := domain.SanitizeRoomKey(r.URL.Query().Get("r"))
	user := domain.UserID(r.URL.Query().Get("u"))
	if key == "" {
		http.Error(w, "room required", http.StatusBadRequest)
		return
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if err := h.Relay.HandleMessage(r.Context(), key, user, body); err != nil {
		if errors.Is(err, domain.ErrUnknownRoom) {
			log.Warn().Str("room", key.String()).Msg("Unknown room")
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type roomStateDTO struct {
	Key       string   `json:"key"`
	State     string   `json:"state"`
	Occupancy int      `json:"occupancy"`
	Users     []string `json:"users"`
	Summary   string   `json:"summary"`
}

func (h *Handler) RoomState(w http.ResponseWriter, r *http.Request) {
	key := domain.SanitizeRoomKey(chi.URLParam(r, "key"))
	room, err := h.Rooms.Snapshot(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	users := make([]string, 0, 2)
	for _, u := range room.Users() {
		users = append(users, u.String())
	}
	writeJSON(w, http.StatusOK, roomStateDTO{
		Key:       room.Key.String(),
		State:     room.State().String(),
		Occupancy: room.Occupancy(),
		Users:     users,
		Summary:   room.String(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrMalformedEnvelope), errors.Is(err, domain.ErrEmptyRoomKey):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownRoom):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidUser):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrRoomFull), errors.Is(err, domain.ErrMailboxFull):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDeliveryFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}
