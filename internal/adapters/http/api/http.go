// Package api exposes read-only rank data over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/communityrank/internal/rank"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the engine.
type Dependencies interface {
	Leaderboard(ctx context.Context, p rank.Platform, communityID string, limit, offset int) ([]rank.UserRecord, error)
	RankPosition(ctx context.Context, p rank.Platform, communityID, userID string) (int, bool, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	XP       int    `json:"xp"`
	Level    int    `json:"level"`
	Rank     int    `json:"rank"`
}

func entryFromRecord(u rank.UserRecord) Entry {
	return Entry{
		UserID:   u.UserID,
		Username: u.Username,
		XP:       u.XP,
		Level:    u.Level,
		Rank:     u.Rank,
	}
}

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler      *HealthHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		leaderboardHandler: NewLeaderboardHandler(deps, defaultMaxLimit),
		rankHandler:        NewRankHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/leaderboard/", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
