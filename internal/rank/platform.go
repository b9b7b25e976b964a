package rank

import (
	"context"
	"fmt"
)

// Platform is the closed set of chat platforms rank data is tracked for.
type Platform int

const (
	// PlatformDiscord scopes rank data by guild.
	PlatformDiscord Platform = iota + 1
	// PlatformReddit scopes rank data by the single bound subreddit.
	PlatformReddit
)

// String returns the canonical platform name.
func (p Platform) String() string {
	switch p {
	case PlatformDiscord:
		return "discord"
	case PlatformReddit:
		return "reddit"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformDiscord || p == PlatformReddit
}

// usersTable returns the store table holding the platform's user records.
func (p Platform) usersTable() (string, error) {
	switch p {
	case PlatformDiscord:
		return "discord_users", nil
	case PlatformReddit:
		return "reddit_users", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
}

// ParsePlatform converts a platform name into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch s {
	case "discord":
		return PlatformDiscord, nil
	case "reddit":
		return PlatformReddit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
}

// Actor identifies the user behind an XP-granting event, independent of any
// platform SDK types.
type Actor struct {
	// ID is the platform user id.
	ID string
	// Username is the display name, denormalized onto records for
	// leaderboard rendering without a live lookup.
	Username string
	// GuildID scopes the event on Discord. Empty for direct messages.
	GuildID string
}

// CommunityResolver resolves the community an actor's activity belongs to.
// Implementations return ErrNoCommunity when the actor has none.
type CommunityResolver interface {
	ResolveCommunity(ctx context.Context, actor Actor) (string, error)
}
