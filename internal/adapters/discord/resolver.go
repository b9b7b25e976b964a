// Package discord wires the rank engine into a Discord gateway session.
package discord

import (
	"context"
	"fmt"

	"github.com/okian/communityrank/internal/rank"
)

// GuildResolver maps a Discord actor to its guild. Direct messages carry no
// guild and resolve to rank.ErrNoCommunity rather than a sentinel value.
type GuildResolver struct{}

// ResolveCommunity returns the actor's guild id.
func (GuildResolver) ResolveCommunity(_ context.Context, actor rank.Actor) (string, error) {
	if actor.GuildID == "" {
		return "", fmt.Errorf("%w: direct message from user %s", rank.ErrNoCommunity, actor.ID)
	}
	return actor.GuildID, nil
}
