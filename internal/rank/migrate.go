package rank

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/communityrank/internal/store"
	"github.com/okian/communityrank/pkg/logger"
	"github.com/okian/communityrank/pkg/metrics"
)

// Source types recorded on MigrationRecords.
const (
	SourceTypeMee6           = "mee6"
	SourceTypeRedditDatabase = "reddit_database"
)

// deletedAuthor is the sentinel a removed account leaves behind in
// historical reddit data.
const deletedAuthor = "[deleted]"

// ImportedPlayer is one row from an external leaderboard page.
type ImportedPlayer struct {
	UserID       string
	XP           int
	MessageCount int
	Username     string
}

// LeaderboardSource pages through an external leaderboard API. Page numbers
// start at 0; an empty slice means no more pages.
type LeaderboardSource interface {
	Page(ctx context.Context, communityID string, page int) ([]ImportedPlayer, error)
}

// AuthorLookup resolves a historical author name to a live user handle.
type AuthorLookup interface {
	LookupAuthor(ctx context.Context, name string) (id, username string, err error)
}

// MigrationStats summarizes one import run.
type MigrationStats struct {
	RunID       string
	SourceType  string
	CommunityID string
	Date        string

	TotalUsers   int
	NewUsers     int
	UpdatedUsers int

	TotalSubmissions   int
	TotalComments      int
	SkippedSubmissions int
	SkippedComments    int
}

func (s MigrationStats) asMap() map[string]any {
	return map[string]any{
		"run_id":              s.RunID,
		"source_type":         s.SourceType,
		"community_id":        s.CommunityID,
		"date":                s.Date,
		"total_users":         s.TotalUsers,
		"new_users":           s.NewUsers,
		"updated_users":       s.UpdatedUsers,
		"total_submissions":   s.TotalSubmissions,
		"total_comments":      s.TotalComments,
		"skipped_submissions": s.SkippedSubmissions,
		"skipped_comments":    s.SkippedComments,
	}
}

// MigrateFromMee6 imports a community's Mee6 leaderboard. Idempotent per
// (discord, communityID, sourceID): a second run returns
// ErrMigrationCompleted. All pages are fetched before anything is written;
// writes then go in batches, each against a snapshot of existing users
// loaded once per batch. Replication is suspended for the whole run and
// restored even on error.
func (e *Engine) MigrateFromMee6(ctx context.Context, src LeaderboardSource, communityID, sourceID string) (*MigrationStats, error) {
	e.migrationMu.Lock()
	defer e.migrationMu.Unlock()

	existing, err := e.records.MigrationStatus(ctx, PlatformDiscord, communityID, sourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrMigrationCompleted, existing.Key)
	}

	started := e.now()
	stats := &MigrationStats{
		RunID:       uuid.NewString(),
		SourceType:  SourceTypeMee6,
		CommunityID: communityID,
		Date:        started.UTC().Format(time.RFC3339),
	}
	e.log.Info(ctx, "starting mee6 import",
		logger.String("run_id", stats.RunID),
		logger.String("community_id", communityID),
	)

	restore := e.records.Store().SuspendReplication()
	runErr := e.runMee6Import(ctx, src, communityID, stats)
	restore()

	if runErr != nil {
		e.log.Error(ctx, "mee6 import failed",
			logger.String("run_id", stats.RunID),
			logger.Error(runErr),
			logger.String("stack", string(debug.Stack())),
		)
		return nil, runErr
	}

	if _, err := e.records.SetMigrationCompleted(ctx, PlatformDiscord, communityID, sourceID,
		SourceTypeMee6, stats.Date, stats.asMap()); err != nil {
		return nil, err
	}

	metrics.RecordMigrationRun(SourceTypeMee6, e.now().Sub(started).Seconds())
	metrics.RecordImportedUsers(stats.NewUsers)
	e.log.Info(ctx, "mee6 import finished",
		logger.String("run_id", stats.RunID),
		logger.Int("total_users", stats.TotalUsers),
		logger.Int("new_users", stats.NewUsers),
		logger.Int("updated_users", stats.UpdatedUsers),
	)
	return stats, nil
}

func (e *Engine) runMee6Import(ctx context.Context, src LeaderboardSource, communityID string, stats *MigrationStats) error {
	// Fetch everything first so a slow API never holds the store lock. A
	// page error ends the loop; players gathered so far are still applied.
	var players []ImportedPlayer
	for page := 0; ; page++ {
		batch, err := src.Page(ctx, communityID, page)
		if err != nil {
			e.log.Warn(ctx, "leaderboard page fetch failed, stopping",
				logger.Int("page", page),
				logger.Error(err),
			)
			break
		}
		if len(batch) == 0 {
			break
		}
		players = append(players, batch...)
	}
	stats.TotalUsers = len(players)

	importDate := e.now().UTC().Format(time.RFC3339)
	for start := 0; start < len(players); start += e.batchSize {
		end := start + e.batchSize
		if end > len(players) {
			end = len(players)
		}
		batch := players[start:end]

		err := e.records.Store().WithLock(ctx, func(tx *store.Tx) error {
			t := tx.Table("discord_users")
			snapshot := loadUserSnapshot(t, communityID)

			for _, p := range batch {
				if cur, ok := snapshot[p.UserID]; ok && cur.XP > 0 {
					// Live activity already accrued; imported totals
					// would clobber it.
					stats.UpdatedUsers++
					continue
				}
				username := p.Username
				if username == "" {
					username = "User " + p.UserID
				}
				upsertUserTx(t, communityID, p.UserID, store.Document{
					"xp":               p.XP,
					"message_count":    p.MessageCount,
					"username":         username,
					"mee6_import_date": importDate,
				})
				stats.NewUsers++
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply import batch: %w", err)
		}
	}
	return nil
}

// MigrateFromRedditHistory imports previously recorded submissions and
// comments from a history store, awarding bulk-range XP per item.
// Idempotent per (reddit, communityID, sourceID). Unlike the leaderboard
// import, accumulated totals overwrite any existing XP: the event log is
// the authoritative record for the period it covers.
func (e *Engine) MigrateFromRedditHistory(ctx context.Context, history *store.Store, lookup AuthorLookup, communityID, sourceID string) (*MigrationStats, error) {
	e.migrationMu.Lock()
	defer e.migrationMu.Unlock()

	existing, err := e.records.MigrationStatus(ctx, PlatformReddit, communityID, sourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrMigrationCompleted, existing.Key)
	}

	started := e.now()
	stats := &MigrationStats{
		RunID:       uuid.NewString(),
		SourceType:  SourceTypeRedditDatabase,
		CommunityID: communityID,
		Date:        started.UTC().Format(time.RFC3339),
	}
	e.log.Info(ctx, "starting reddit history import",
		logger.String("run_id", stats.RunID),
		logger.String("community_id", communityID),
	)

	restore := e.records.Store().SuspendReplication()
	runErr := e.runHistoryImport(ctx, history, lookup, communityID, stats)
	restore()

	if runErr != nil {
		e.log.Error(ctx, "reddit history import failed",
			logger.String("run_id", stats.RunID),
			logger.Error(runErr),
			logger.String("stack", string(debug.Stack())),
		)
		return nil, runErr
	}

	if _, err := e.records.SetMigrationCompleted(ctx, PlatformReddit, communityID, sourceID,
		SourceTypeRedditDatabase, stats.Date, stats.asMap()); err != nil {
		return nil, err
	}

	metrics.RecordMigrationRun(SourceTypeRedditDatabase, e.now().Sub(started).Seconds())
	metrics.RecordImportedUsers(stats.TotalUsers)
	metrics.RecordSkippedRecords(stats.SkippedSubmissions + stats.SkippedComments)
	e.log.Info(ctx, "reddit history import finished",
		logger.String("run_id", stats.RunID),
		logger.Int("total_users", stats.TotalUsers),
		logger.Int("total_submissions", stats.TotalSubmissions),
		logger.Int("total_comments", stats.TotalComments),
	)
	return stats, nil
}

// historyTotals accumulates one author's contribution counts.
type historyTotals struct {
	userID      string
	username    string
	xp          int
	submissions int
	comments    int
}

func (e *Engine) runHistoryImport(ctx context.Context, history *store.Store, lookup AuthorLookup, communityID string, stats *MigrationStats) error {
	var submissions, comments []store.Document
	err := history.WithLock(ctx, func(tx *store.Tx) error {
		submissions = tx.Table("submissions").All()
		comments = tx.Table("comments").All()
		return nil
	})
	if err != nil {
		return fmt.Errorf("read history store: %w", err)
	}
	stats.TotalSubmissions = len(submissions)
	stats.TotalComments = len(comments)

	// Resolve each distinct author once; failed or deleted authors are
	// skipped and counted per record.
	totals := make(map[string]*historyTotals)
	resolved := make(map[string]*historyTotals)

	accumulate := func(doc store.Document, skipped *int, bump func(*historyTotals)) {
		author := strings.TrimSpace(asString(doc["author"]))
		if author == "" || author == deletedAuthor {
			*skipped++
			return
		}
		t, seen := resolved[author]
		if !seen {
			id, username, err := lookup.LookupAuthor(ctx, author)
			if err != nil {
				e.log.Debug(ctx, "author lookup failed, skipping",
					logger.String("author", author),
					logger.Error(err),
				)
				resolved[author] = nil
				*skipped++
				return
			}
			t = &historyTotals{userID: id, username: username}
			resolved[author] = t
			totals[id] = t
		}
		if t == nil {
			*skipped++
			return
		}
		t.xp += e.randRange(e.bulkXPMin, e.bulkXPMax)
		bump(t)
	}

	for _, doc := range submissions {
		accumulate(doc, &stats.SkippedSubmissions, func(t *historyTotals) { t.submissions++ })
	}
	for _, doc := range comments {
		accumulate(doc, &stats.SkippedComments, func(t *historyTotals) { t.comments++ })
	}
	stats.TotalUsers = len(totals)

	importDate := e.now().UTC().Format(time.RFC3339)
	err = e.records.Store().WithLock(ctx, func(tx *store.Tx) error {
		t := tx.Table("reddit_users")
		snapshot := loadUserSnapshot(t, communityID)

		for id, acc := range totals {
			if _, ok := snapshot[id]; !ok {
				stats.NewUsers++
			} else {
				stats.UpdatedUsers++
			}
			upsertUserTx(t, communityID, id, store.Document{
				"xp":                 acc.xp,
				"message_count":      acc.submissions + acc.comments,
				"submission_count":   acc.submissions,
				"comment_count":      acc.comments,
				"username":           acc.username,
				"reddit_import_date": importDate,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply history import: %w", err)
	}
	return nil
}

// loadUserSnapshot indexes a community's existing users by user id, within
// an open lock scope.
func loadUserSnapshot(t *store.Table, communityID string) map[string]UserRecord {
	snapshot := make(map[string]UserRecord)
	for _, doc := range t.All() {
		if asString(doc["community_id"]) != communityID {
			continue
		}
		rec := recordFromDocument(doc)
		snapshot[rec.UserID] = rec
	}
	return snapshot
}
