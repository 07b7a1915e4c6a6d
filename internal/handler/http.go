// Package handler is the HTTP edge: the chi router implementing §6's
// REST routes plus the WebSocket upgrade and the supplemented
// collaborator endpoints, generalized from the teacher's
// internal/handler/http.go APIResponse/writeJSON vocabulary.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/matchmaking"
	"github.com/matchcore/matchcore/internal/transport"
)

// Service is the match service boundary the handlers call through.
type Service interface {
	Player(ctx context.Context, id string) (*domain.Player, error)
	CreatePlayer(ctx context.Context, name string, primaryMode domain.Mode) (*domain.Player, error)
	Leaderboard(ctx context.Context, mode string, limit int) ([]domain.LeaderboardEntry, error)
	Match(matchID string) (*domain.Match, bool)
}

// Handler wires the REST API, the WebSocket upgrade, and the stats
// collaborators into one chi router.
type Handler struct {
	service Service
	engine  *matchmaking.Engine
	hub     *transport.Hub
	wsHandler transport.Handler
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(service Service, engine *matchmaking.Engine, hub *transport.Hub, wsHandler transport.Handler, logger *slog.Logger) *Handler {
	return &Handler{service: service, engine: engine, hub: hub, wsHandler: wsHandler, logger: logger}
}

// APIResponse is the standard envelope every JSON response uses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router builds the full chi.Router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/players", h.CreatePlayer)
		r.Get("/players/{playerID}", h.GetPlayer)
		r.Get("/queue/status", h.QueueStatus)
		r.Get("/games/{matchID}", h.GetMatch)
		r.Get("/leaderboard/{mode}", h.GetLeaderboard)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/ws/stats", h.GetWebSocketStats)
		})
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// HandleWebSocket upgrades the connection and registers it with the hub.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	transport.ServeWs(h.hub, h.wsHandler, h.logger, w, r)
}

// GetWebSocketStats reports live connection counts, a supplemented
// collaborator endpoint kept from the teacher's GetWebSocketStats.
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"totalConnections": h.hub.TotalConnections(),
	})
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

type createPlayerRequest struct {
	Username string      `json:"username"`
	GameMode domain.Mode `json:"gameMode"`
}

// CreatePlayer implements POST /api/players.
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidInput)
		return
	}

	player, err := h.service.CreatePlayer(r.Context(), req.Username, req.GameMode)
	if err != nil {
		if domain.IsInvalidInput(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to create player", "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: player})
}

// GetPlayer implements GET /api/players/:id.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playerID")
	player, err := h.service.Player(r.Context(), id)
	if err != nil {
		if domain.IsNotFound(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get player", "player_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeSuccess(w, player)
}

// QueueStatus implements GET /api/queue/status.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	out := make(map[string]map[string]interface{}, len(stats))
	for mode, s := range stats {
		out[string(mode)] = map[string]interface{}{
			"playersInQueue":     s.PlayersInQueue,
			"averageWaitTime":    s.AverageWaitTime.Seconds(),
			"estimatedMatchTime": s.EstimatedMatchTime.Seconds(),
		}
	}
	h.writeSuccess(w, out)
}

// GetMatch implements GET /api/games/:id.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "matchID")
	match, ok := h.service.Match(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
		return
	}
	h.writeSuccess(w, match)
}

// GetLeaderboard implements the supplemented GET /api/leaderboard/:mode.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	limit := 10
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	entries, err := h.service.Leaderboard(r.Context(), mode, limit)
	if err != nil {
		h.logger.Error("failed to read leaderboard", "mode", mode, "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeSuccess(w, entries)
}
