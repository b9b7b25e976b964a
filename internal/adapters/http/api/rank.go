package api

import (
	"net/http"
)

// RankHandler handles rank position requests.
type RankHandler struct {
	deps Dependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps Dependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// rankResponse is the read shape for one user's position.
type rankResponse struct {
	UserID string `json:"user_id"`
	Rank   int    `json:"rank"`
}

// HandleGetRank handles GET /rank/{platform}/{community_id}/{user_id}
// requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	platform, communityID, userID, err := splitRankPath(r.URL.Path, "/rank/")
	if err != nil || userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	pos, ok, err := h.deps.RankPosition(r.Context(), platform, communityID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{UserID: userID, Rank: pos})
}
