package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/communityrank/internal/rank"
)

// defaultMaxLimit caps how many leaderboard entries one request may ask for.
const defaultMaxLimit = 100

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps Dependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles
// GET /leaderboard/{platform}/{community_id}?limit=N&offset=M requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	platform, communityID, rest, err := splitRankPath(r.URL.Path, "/leaderboard/")
	if err != nil || rest != "" {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	limit := h.maxLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		if limit > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", ErrBadRequest)
			return
		}
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
	}

	users, err := h.deps.Leaderboard(r.Context(), platform, communityID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		entries = append(entries, entryFromRecord(u))
	}
	writeJSON(w, http.StatusOK, entries)
}

// splitRankPath parses "{prefix}{platform}/{community}[/rest]" paths.
func splitRankPath(path, prefix string) (rank.Platform, string, string, error) {
	trimmed := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return 0, "", "", ErrBadRequest
	}
	platform, err := rank.ParsePlatform(parts[0])
	if err != nil {
		return 0, "", "", errors.Join(ErrBadRequest, err)
	}
	rest := ""
	if len(parts) == 3 {
		rest = parts[2]
	}
	return platform, parts[1], rest, nil
}
