// Package reddit resolves subreddit communities and historical authors via
// the Reddit API.
package reddit

import (
	"context"
	"fmt"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/okian/communityrank/internal/rank"
	"github.com/okian/communityrank/pkg/logger"
)

// Credentials hold script-app API credentials. All four fields empty means
// read-only access, which is enough for author lookups.
type Credentials struct {
	ID       string
	Secret   string
	Username string
	Password string
}

func (c Credentials) empty() bool {
	return c.ID == "" && c.Secret == "" && c.Username == "" && c.Password == ""
}

// Client wraps the Reddit API for the pieces the rank engine needs:
// community resolution and author lookup.
type Client struct {
	api *reddit.Client
	log logger.Logger
}

// NewClient builds a Reddit API client. Empty credentials yield a
// read-only client.
func NewClient(creds Credentials, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Get().Named("reddit")
	}

	var api *reddit.Client
	var err error
	if creds.empty() {
		api, err = reddit.NewReadonlyClient()
	} else {
		api, err = reddit.NewClient(reddit.Credentials{
			ID:       creds.ID,
			Secret:   creds.Secret,
			Username: creds.Username,
			Password: creds.Password,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}
	return &Client{api: api, log: log}, nil
}

// LookupAuthor resolves a historical author name to the account's full id
// and current name. Suspended or deleted accounts return an error and are
// skipped by the import.
func (c *Client) LookupAuthor(ctx context.Context, name string) (string, string, error) {
	user, _, err := c.api.User.Get(ctx, name)
	if err != nil {
		return "", "", fmt.Errorf("look up reddit user %q: %w", name, err)
	}
	if user == nil || user.ID == "" {
		return "", "", fmt.Errorf("reddit user %q has no id", name)
	}
	return user.ID, user.Name, nil
}

// SubredditID resolves a subreddit name to its full id, used as the
// community id for reddit rank data.
func (c *Client) SubredditID(ctx context.Context, name string) (string, error) {
	sub, _, err := c.api.Subreddit.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("look up subreddit %q: %w", name, err)
	}
	if sub == nil || sub.FullID == "" {
		return "", fmt.Errorf("subreddit %q has no id", name)
	}
	return sub.FullID, nil
}

// SubredditResolver maps every reddit actor onto the single subreddit the
// bot is bound to.
type SubredditResolver struct {
	subredditID string
}

// NewSubredditResolver builds a resolver for a fixed subreddit id.
func NewSubredditResolver(subredditID string) *SubredditResolver {
	return &SubredditResolver{subredditID: subredditID}
}

// ResolveCommunity returns the bound subreddit id.
func (r *SubredditResolver) ResolveCommunity(_ context.Context, actor rank.Actor) (string, error) {
	if r.subredditID == "" {
		return "", fmt.Errorf("%w: no subreddit configured for user %s", rank.ErrNoCommunity, actor.ID)
	}
	return r.subredditID, nil
}
