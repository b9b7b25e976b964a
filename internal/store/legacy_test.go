package store_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/okian/communityrank/internal/store"
)

// writeLegacyDB builds a bbolt fixture at dir/<name>.db with the given
// buckets of JSON rows.
func writeLegacyDB(t *testing.T, dir, name string, buckets map[string]map[string]map[string]any) {
	t.Helper()

	db, err := bolt.Open(filepath.Join(dir, name+".db"), 0o600, nil)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		for bucketName, rows := range buckets {
			b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
			if err != nil {
				return err
			}
			for key, row := range rows {
				raw, err := json.Marshal(row)
				if err != nil {
					return err
				}
				if err := b.Put([]byte(key), raw); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write fixture db: %v", err)
	}
}

func TestLegacyMigrationClassifiesMixedRows(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// One legacy bucket mixing comment-shaped (has body) and
	// submission-shaped rows.
	writeLegacyDB(t, dir, "reddit", map[string]map[string]map[string]any{
		"posts": {
			"c1": {"author": "alice", "body": "nice post"},
			"s1": {"author": "bob", "title": "hello", "selftext": "world"},
		},
	})

	s, err := store.Open(ctx, "reddit", dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = s.WithLock(ctx, func(tx *store.Tx) error {
		comments := tx.Table("comments")
		submissions := tx.Table("submissions")

		if comments.Len() != 1 {
			t.Errorf("comments.Len() = %d, want 1", comments.Len())
		}
		if submissions.Len() != 1 {
			t.Errorf("submissions.Len() = %d, want 1", submissions.Len())
		}

		c, ok := comments.Get(func(d store.Document) bool { return d["author"] == "alice" })
		if !ok {
			t.Fatal("comment row missing")
		}
		if c["reddit_id"] != "c1" {
			t.Errorf("comment reddit_id = %v, want c1", c["reddit_id"])
		}
		if c["processed"] != false {
			t.Errorf("comment processed default = %v, want false", c["processed"])
		}

		sub, ok := submissions.Get(func(d store.Document) bool { return d["author"] == "bob" })
		if !ok {
			t.Fatal("submission row missing")
		}
		if sub["title"] != "hello" {
			t.Errorf("submission title = %v", sub["title"])
		}
		if _, hasBot := sub["bot_discord"]; !hasBot {
			t.Error("submission missing bot_discord default")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	// The legacy file stays in place as a safety net.
	if _, err := os.Stat(filepath.Join(dir, "reddit.db")); err != nil {
		t.Errorf("legacy file removed: %v", err)
	}
}

func TestLegacyMigrationGenericTables(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	writeLegacyDB(t, dir, "rank", map[string]map[string]map[string]any{
		"discord_users": {
			"100": {"user_id": "100", "xp": 250},
			"200": {"xp": 10},
		},
	})

	s, err := store.Open(ctx, "rank", dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = s.WithLock(ctx, func(tx *store.Tx) error {
		users := tx.Table("discord_users")
		if users.Len() != 2 {
			t.Fatalf("discord_users.Len() = %d, want 2", users.Len())
		}

		// A row without an id field gets the legacy key as id.
		doc, ok := users.Get(func(d store.Document) bool { return d["id"] == "200" })
		if !ok {
			t.Error("row 200 did not receive id from legacy key")
		} else if doc["xp"] != float64(10) && doc["xp"] != 10 {
			t.Errorf("row 200 xp = %v", doc["xp"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
}

func TestLegacyMigrationSkippedWhenNewFileExists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	writeLegacyDB(t, dir, "rank", map[string]map[string]map[string]any{
		"discord_users": {"100": {"xp": 1}},
	})

	// Pre-existing new-format file wins; legacy must not be migrated again.
	err := os.WriteFile(filepath.Join(dir, "rank.json"),
		[]byte(`{"discord_users": {"1": {"user_id": "existing"}}}`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	s, err := store.Open(ctx, "rank", dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = s.WithLock(ctx, func(tx *store.Tx) error {
		users := tx.Table("discord_users")
		if users.Len() != 1 {
			t.Fatalf("discord_users.Len() = %d, want 1", users.Len())
		}
		if _, ok := users.Get(func(d store.Document) bool { return d["user_id"] == "existing" }); !ok {
			t.Error("existing row replaced by legacy migration")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
}
