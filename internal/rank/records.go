// Package rank implements the cross-platform XP and leveling engine:
// record access, the level curve, cooldown-gated awarding, leaderboards and
// historical imports.
package rank

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/communityrank/internal/store"
	"github.com/okian/communityrank/pkg/logger"
)

// Table names used by the rank database.
const (
	tableMigrations = "migrations"
)

// rankTables are created idempotently when the record store is built.
var rankTables = []string{"discord_users", "reddit_users", tableMigrations}

// UserRecord is one user's rank data in one community. The tuple
// (platform, CommunityID, UserID) identifies at most one record per table.
// Level is always derived from XP, never stored.
type UserRecord struct {
	UserID          string
	CommunityID     string
	Username        string
	XP              int
	MessageCount    int
	SubmissionCount int
	CommentCount    int
	LastActivity    int64

	// Extra holds auxiliary fields (roles, github_username, import
	// timestamps) preserved across updates.
	Extra map[string]any

	// Rank and Level are leaderboard annotations, not persisted.
	Rank  int
	Level int
}

// MigrationRecord marks a completed historical import. Insert-only: once a
// record exists for a key, re-running that import is a no-op.
type MigrationRecord struct {
	Key         string
	Platform    string
	CommunityID string
	SourceID    string
	SourceType  string
	Timestamp   string
	Stats       map[string]any
}

// RecordStore provides typed access to the rank tables, built on the
// document store.
type RecordStore struct {
	store *store.Store
	log   logger.Logger
}

// NewRecordStore wraps the rank database and idempotently creates the
// required tables.
func NewRecordStore(ctx context.Context, s *store.Store, log logger.Logger) (*RecordStore, error) {
	if log == nil {
		log = logger.Get()
	}
	r := &RecordStore{store: s, log: log.Named("records")}

	err := s.WithLock(ctx, func(tx *store.Tx) error {
		for _, name := range rankTables {
			tx.Table(name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure rank tables: %w", err)
	}
	return r, nil
}

// Store exposes the underlying document store, for callers that need to
// span a whole read-modify-write under one lock acquisition.
func (r *RecordStore) Store() *store.Store {
	return r.store
}

// User returns the record for (platform, community, user). With
// createIfMissing, a zero-value record is inserted and returned when the
// user is absent; otherwise absence returns nil.
func (r *RecordStore) User(ctx context.Context, p Platform, communityID, userID string, createIfMissing bool) (*UserRecord, error) {
	tableName, err := p.usersTable()
	if err != nil {
		return nil, err
	}

	var rec *UserRecord
	err = r.store.WithLock(ctx, func(tx *store.Tx) error {
		rec = getUserTx(tx.Table(tableName), communityID, userID, createIfMissing)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateUser upserts the record for (platform, community, user) with the
// given fields. The key fields are forced to match the call arguments
// regardless of what data carries, so a caller cannot corrupt the key.
func (r *RecordStore) UpdateUser(ctx context.Context, p Platform, communityID, userID string, data store.Document) (*UserRecord, error) {
	tableName, err := p.usersTable()
	if err != nil {
		return nil, err
	}

	var rec *UserRecord
	err = r.store.WithLock(ctx, func(tx *store.Tx) error {
		rec = upsertUserTx(tx.Table(tableName), communityID, userID, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CommunityUsers returns all users in a community, optionally filtered by a
// case-insensitive username substring, sorted ascending by username.
func (r *RecordStore) CommunityUsers(ctx context.Context, p Platform, communityID, search string) ([]UserRecord, error) {
	tableName, err := p.usersTable()
	if err != nil {
		return nil, err
	}

	var users []UserRecord
	err = r.store.WithLock(ctx, func(tx *store.Tx) error {
		for _, doc := range tx.Table(tableName).All() {
			if asString(doc["community_id"]) != communityID {
				continue
			}
			users = append(users, recordFromDocument(doc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if needle := strings.ToLower(strings.TrimSpace(search)); needle != "" {
		filtered := users[:0]
		for _, u := range users {
			if u.Username != "" && strings.Contains(strings.ToLower(u.Username), needle) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	sort.SliceStable(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
	return users, nil
}

// Leaderboard returns a community's users ordered by XP descending (ties
// keep scan order), sliced to [offset, offset+limit). An offset beyond the
// result size yields an empty list.
func (r *RecordStore) Leaderboard(ctx context.Context, p Platform, communityID string, limit, offset int) ([]UserRecord, error) {
	tableName, err := p.usersTable()
	if err != nil {
		return nil, err
	}

	var users []UserRecord
	err = r.store.WithLock(ctx, func(tx *store.Tx) error {
		for _, doc := range tx.Table(tableName).All() {
			if asString(doc["community_id"]) != communityID {
				continue
			}
			users = append(users, recordFromDocument(doc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].XP > users[j].XP
	})

	if offset >= len(users) || offset < 0 {
		return []UserRecord{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(users) {
		end = len(users)
	}
	return users[offset:end], nil
}

// MigrationStatus returns the completion record for a past import, or nil
// when the import has not run.
func (r *RecordStore) MigrationStatus(ctx context.Context, p Platform, communityID, sourceID string) (*MigrationRecord, error) {
	key := migrationKey(p, communityID, sourceID)

	var rec *MigrationRecord
	err := r.store.WithLock(ctx, func(tx *store.Tx) error {
		doc, ok := tx.Table(tableMigrations).Get(func(d store.Document) bool {
			return asString(d["migration_key"]) == key
		})
		if ok {
			rec = migrationFromDocument(doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetMigrationCompleted marks an import as completed. Insert-only; callers
// check MigrationStatus before starting work.
func (r *RecordStore) SetMigrationCompleted(ctx context.Context, p Platform, communityID, sourceID, sourceType, timestamp string, stats map[string]any) (*MigrationRecord, error) {
	key := migrationKey(p, communityID, sourceID)
	doc := store.Document{
		"migration_key": key,
		"platform":      p.String(),
		"community_id":  communityID,
		"source_id":     sourceID,
		"source_type":   sourceType,
		"timestamp":     timestamp,
		"stats":         stats,
	}

	err := r.store.WithLock(ctx, func(tx *store.Tx) error {
		tx.Table(tableMigrations).Insert(doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return migrationFromDocument(doc), nil
}

func migrationKey(p Platform, communityID, sourceID string) string {
	return fmt.Sprintf("%s:%s:%s", p, communityID, sourceID)
}

// getUserTx looks a user up within an open lock scope.
func getUserTx(t *store.Table, communityID, userID string, createIfMissing bool) *UserRecord {
	doc, ok := t.Get(matchUser(communityID, userID))
	if !ok {
		if !createIfMissing {
			return nil
		}
		doc = store.Document{
			"user_id":       userID,
			"community_id":  communityID,
			"xp":            0,
			"message_count": 0,
			"last_activity": 0,
		}
		t.Insert(doc)
	}
	rec := recordFromDocument(doc)
	return &rec
}

// upsertUserTx writes a user within an open lock scope, forcing key fields.
func upsertUserTx(t *store.Table, communityID, userID string, data store.Document) *UserRecord {
	fields := data.Clone()
	fields["user_id"] = userID
	fields["community_id"] = communityID

	if n := t.Update(fields, matchUser(communityID, userID)); n == 0 {
		t.Insert(fields)
	}
	doc, _ := t.Get(matchUser(communityID, userID))
	rec := recordFromDocument(doc)
	return &rec
}

func matchUser(communityID, userID string) func(store.Document) bool {
	return func(d store.Document) bool {
		return asString(d["user_id"]) == userID && asString(d["community_id"]) == communityID
	}
}

// knownUserFields are lifted into UserRecord; everything else lands in Extra.
var knownUserFields = map[string]struct{}{
	"user_id":          {},
	"community_id":     {},
	"username":         {},
	"xp":               {},
	"message_count":    {},
	"submission_count": {},
	"comment_count":    {},
	"last_activity":    {},
}

func recordFromDocument(doc store.Document) UserRecord {
	u := UserRecord{
		UserID:          asString(doc["user_id"]),
		CommunityID:     asString(doc["community_id"]),
		Username:        asString(doc["username"]),
		XP:              asInt(doc["xp"]),
		MessageCount:    asInt(doc["message_count"]),
		SubmissionCount: asInt(doc["submission_count"]),
		CommentCount:    asInt(doc["comment_count"]),
		LastActivity:    asInt64(doc["last_activity"]),
	}
	for k, v := range doc {
		if _, known := knownUserFields[k]; known {
			continue
		}
		if u.Extra == nil {
			u.Extra = make(map[string]any)
		}
		u.Extra[k] = v
	}
	return u
}

func migrationFromDocument(doc store.Document) *MigrationRecord {
	stats, _ := doc["stats"].(map[string]any)
	return &MigrationRecord{
		Key:         asString(doc["migration_key"]),
		Platform:    asString(doc["platform"]),
		CommunityID: asString(doc["community_id"]),
		SourceID:    asString(doc["source_id"]),
		SourceType:  asString(doc["source_type"]),
		Timestamp:   asString(doc["timestamp"]),
		Stats:       stats,
	}
}

// Documents that have been through a JSON round trip carry float64 numbers;
// fresh documents carry ints. These helpers accept both.

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}
