// Package mee6 fetches leaderboard pages from the Mee6 levels API.
package mee6

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/communityrank/internal/rank"
	"github.com/okian/communityrank/pkg/logger"
)

// defaultBaseURL is the public Mee6 levels plugin endpoint.
const defaultBaseURL = "https://mee6.xyz/api/plugins/levels"

// Client implements rank.LeaderboardSource against the Mee6 HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient builds a Mee6 API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("mee6")
	}
	return c
}

// leaderboardPage mirrors the wire shape of one API page.
type leaderboardPage struct {
	Players []struct {
		ID           string `json:"id"`
		XP           int    `json:"xp"`
		MessageCount int    `json:"message_count"`
		Username     string `json:"username"`
	} `json:"players"`
}

// Page fetches one leaderboard page for a guild. Page numbers start at 0.
// An empty slice signals the end of the leaderboard.
func (c *Client) Page(ctx context.Context, communityID string, page int) ([]rank.ImportedPlayer, error) {
	url := c.baseURL + "/" + communityID + "?page=" + strconv.Itoa(page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build leaderboard request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leaderboard page %d: unexpected status %d", page, resp.StatusCode)
	}

	var body leaderboardPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode leaderboard page %d: %w", page, err)
	}

	players := make([]rank.ImportedPlayer, 0, len(body.Players))
	for _, p := range body.Players {
		players = append(players, rank.ImportedPlayer{
			UserID:       p.ID,
			XP:           p.XP,
			MessageCount: p.MessageCount,
			Username:     p.Username,
		})
	}
	c.log.Debug(ctx, "fetched leaderboard page",
		logger.String("community_id", communityID),
		logger.Int("page", page),
		logger.Int("players", len(players)),
	)
	return players, nil
}
