package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/okian/communityrank/internal/rank"
	"github.com/okian/communityrank/pkg/logger"
)

// Handler owns the gateway session and feeds message activity into the
// rank engine.
type Handler struct {
	session       *discordgo.Session
	engine        *rank.Engine
	announceLevel bool
	log           logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLevelUpAnnouncements toggles the level-up reply in the channel the
// triggering message arrived on.
func WithLevelUpAnnouncements(enabled bool) Option {
	return func(h *Handler) {
		h.announceLevel = enabled
	}
}

// WithLogger sets the handler logger.
func WithLogger(log logger.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// NewHandler builds a gateway handler over a bot token.
func NewHandler(token string, engine *rank.Engine, opts ...Option) (*Handler, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	h := &Handler{
		session:       session,
		engine:        engine,
		announceLevel: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Get().Named("discord")
	}

	session.AddHandler(h.onMessageCreate)
	return h, nil
}

// Open connects the gateway session.
func (h *Handler) Open(ctx context.Context) error {
	if err := h.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	h.log.Info(ctx, "discord gateway connected")
	return nil
}

// Close disconnects the gateway session.
func (h *Handler) Close(ctx context.Context) error {
	h.log.Info(ctx, "closing discord gateway")
	return h.session.Close()
}

func (h *Handler) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	ctx := context.Background()
	actor := rank.Actor{
		ID:       m.Author.ID,
		Username: m.Author.Username,
		GuildID:  m.GuildID,
	}

	communityID, err := h.engine.ResolveCommunity(ctx, rank.PlatformDiscord, actor)
	if err != nil {
		// DMs have no community and earn no XP.
		if errors.Is(err, rank.ErrNoCommunity) {
			return
		}
		h.log.Error(ctx, "resolve community failed",
			logger.String("user_id", actor.ID),
			logger.Error(err),
		)
		return
	}

	res, err := h.engine.AwardXP(ctx, rank.PlatformDiscord, communityID, actor)
	if err != nil {
		h.log.Error(ctx, "award xp failed",
			logger.String("community_id", communityID),
			logger.String("user_id", actor.ID),
			logger.Error(err),
		)
		return
	}
	if res == nil || !res.LevelUp {
		return
	}

	if h.announceLevel {
		msg := fmt.Sprintf("%s leveled up to level %d!", m.Author.Mention(), res.Level)
		if _, err := s.ChannelMessageSend(m.ChannelID, msg); err != nil {
			h.log.Warn(ctx, "level-up announcement failed",
				logger.String("channel_id", m.ChannelID),
				logger.Error(err),
			)
		}
	}
}
