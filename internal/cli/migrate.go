package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/communityrank/internal/app"
	"github.com/okian/communityrank/internal/adapters/mee6"
	"github.com/okian/communityrank/internal/adapters/reddit"
	"github.com/okian/communityrank/internal/config"
	"github.com/okian/communityrank/internal/rank"
	"github.com/okian/communityrank/internal/store"
	"github.com/okian/communityrank/pkg/logger"
)

// historyDatabase is the named database historical reddit activity was
// recorded into by earlier versions of the bot.
const historyDatabase = "reddit"

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run one-shot historical imports into the rank store",
}

var migrateMee6Cmd = &cobra.Command{
	Use:   "mee6 <guild-id>",
	Short: "Import a guild's Mee6 leaderboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guildID := args[0]
		return withService(cmd.Context(), func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
			src := mee6.NewClient(mee6.WithBaseURL(cfg.Mee6BaseURL))
			stats, err := svc.Engine().MigrateFromMee6(ctx, src, guildID, "mee6")
			if err != nil {
				if errors.Is(err, rank.ErrMigrationCompleted) {
					cmd.Println("mee6 import already completed for this guild")
					return nil
				}
				return err
			}
			cmd.Printf("imported %d users (%d new, %d already had xp)\n",
				stats.TotalUsers, stats.NewUsers, stats.UpdatedUsers)
			return svc.Store().Sync(ctx)
		})
	},
}

var migrateHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Import locally recorded Reddit submissions and comments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
			client, err := reddit.NewClient(reddit.Credentials{
				ID:       cfg.RedditClientID,
				Secret:   cfg.RedditClientSecret,
				Username: cfg.RedditUsername,
				Password: cfg.RedditPassword,
			}, nil)
			if err != nil {
				return err
			}

			subredditID := cfg.SubredditID
			if subredditID == "" {
				if cfg.SubredditName == "" {
					return fmt.Errorf("no subreddit configured")
				}
				subredditID, err = client.SubredditID(ctx, cfg.SubredditName)
				if err != nil {
					return err
				}
			}

			history, err := store.Open(ctx, historyDatabase, cfg.DataDir,
				store.WithLegacyDir(cfg.DataDir))
			if err != nil {
				return err
			}

			stats, err := svc.Engine().MigrateFromRedditHistory(ctx, history, client, subredditID, "reddit_database")
			if err != nil {
				if errors.Is(err, rank.ErrMigrationCompleted) {
					cmd.Println("history import already completed for this subreddit")
					return nil
				}
				return err
			}
			cmd.Printf("imported %d users from %d submissions and %d comments (%d records skipped)\n",
				stats.TotalUsers, stats.TotalSubmissions, stats.TotalComments,
				stats.SkippedSubmissions+stats.SkippedComments)
			return svc.Store().Sync(ctx)
		})
	},
}

// withService loads configuration and builds the service graph without
// starting listeners, for one-shot commands.
func withService(ctx context.Context, fn func(context.Context, *config.Config, *service.Service) error) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}

	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, cfg, svc)
}

func init() {
	migrateCmd.AddCommand(migrateMee6Cmd, migrateHistoryCmd)
}
