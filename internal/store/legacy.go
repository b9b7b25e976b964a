package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/okian/communityrank/pkg/logger"
)

// Legacy databases are single bbolt files: each top-level bucket is a table
// name and each key inside it is a row id mapping to a JSON object. The
// legacy file is left in place after migration as a safety net.

const legacyOpenTimeout = 5 * time.Second

// migrateLegacy copies every row of the legacy database into the new
// format. Rows that fail to decode are skipped individually so one bad
// record does not lose the rest.
func (s *Store) migrateLegacy(ctx context.Context) error {
	db, err := bolt.Open(s.legacyPath, 0o600, &bolt.Options{
		ReadOnly: true,
		Timeout:  legacyOpenTimeout,
	})
	if err != nil {
		return fmt.Errorf("open legacy database: %w", err)
	}
	defer db.Close()

	isReddit := strings.Contains(s.name, "reddit")

	err = db.View(func(btx *bolt.Tx) error {
		return btx.ForEach(func(bucketName []byte, bucket *bolt.Bucket) error {
			tableName := string(bucketName)
			return bucket.ForEach(func(key, value []byte) error {
				if value == nil {
					// Nested buckets have no analogue in the new format.
					return nil
				}

				var rec map[string]any
				if err := json.Unmarshal(value, &rec); err != nil {
					s.log.Warn(ctx, "skipping undecodable legacy row",
						logger.String("db", s.name),
						logger.String("table", tableName),
						logger.String("key", string(key)),
						logger.Error(err))
					return nil
				}

				if isReddit {
					// Comment-shaped rows carry a body; everything else is
					// submission-shaped. Classification decides the target
					// table even when shapes are mixed under one bucket.
					if _, ok := rec["body"]; ok {
						s.table("comments").Insert(normalizeLegacyComment(string(key), rec))
					} else {
						s.table("submissions").Insert(normalizeLegacySubmission(string(key), rec))
					}
					return nil
				}

				if _, ok := rec["id"]; !ok {
					rec["id"] = string(key)
				}
				s.table(tableName).Insert(Document(rec))
				return nil
			})
		})
	})
	if err != nil {
		return fmt.Errorf("read legacy database: %w", err)
	}

	s.log.Info(ctx, "legacy migration completed",
		logger.String("db", s.name), logger.String("to", s.path))
	return nil
}

// normalizeLegacyComment maps a legacy comment row onto the fixed field set,
// filling defaults for absent optional fields.
func normalizeLegacyComment(key string, rec map[string]any) Document {
	return Document{
		"reddit_id":   orDefault(rec["id"], key),
		"author":      rec["author"],
		"body":        rec["body"],
		"created_utc": orDefault(rec["created_utc"], 0),
		"processed":   orDefault(rec["processed"], false),
		"slash_command": orDefault(rec["slash_command"], map[string]any{
			"project": nil,
			"command": nil,
		}),
	}
}

// normalizeLegacySubmission maps a legacy submission row onto the fixed
// field set, filling defaults for absent optional fields.
func normalizeLegacySubmission(key string, rec map[string]any) Document {
	return Document{
		"reddit_id":                   orDefault(rec["id"], key),
		"title":                       rec["title"],
		"selftext":                    rec["selftext"],
		"author":                      stringify(rec["author"]),
		"created_utc":                 orDefault(rec["created_utc"], 0),
		"permalink":                   rec["permalink"],
		"url":                         rec["url"],
		"link_flair_text":             rec["link_flair_text"],
		"link_flair_background_color": rec["link_flair_background_color"],
		"bot_discord": orDefault(rec["bot_discord"], map[string]any{
			"sent":     false,
			"sent_utc": nil,
		}),
	}
}

func orDefault(v, def any) any {
	if v == nil {
		return def
	}
	return v
}

func stringify(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
