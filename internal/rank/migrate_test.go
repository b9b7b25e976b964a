package rank_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/communityrank/internal/rank"
	"github.com/okian/communityrank/internal/store"
)

// fakeLeaderboard serves canned pages and can fail from a given page on.
type fakeLeaderboard struct {
	pages    [][]rank.ImportedPlayer
	failFrom int
	calls    int
}

func (f *fakeLeaderboard) Page(_ context.Context, _ string, page int) ([]rank.ImportedPlayer, error) {
	f.calls++
	if f.failFrom > 0 && page >= f.failFrom {
		return nil, errors.New("upstream 500")
	}
	if page >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page], nil
}

// fakeLookup resolves author names to ids, failing for configured names.
type fakeLookup struct {
	fail map[string]bool
}

func (f *fakeLookup) LookupAuthor(_ context.Context, name string) (string, string, error) {
	if f.fail[name] {
		return "", "", fmt.Errorf("no such user %s", name)
	}
	return "id-" + name, name, nil
}

func TestEngine_MigrateFromMee6(t *testing.T) {
	Convey("Given an engine and a two-page leaderboard source", t, func() {
		records := newRecords(t)
		engine := rank.NewEngine(records,
			rank.WithRandSource(rand.NewSource(1)),
			rank.WithBatchSize(2),
		)
		ctx := context.Background()
		src := &fakeLeaderboard{pages: [][]rank.ImportedPlayer{
			{
				{UserID: "u1", XP: 1200, MessageCount: 80, Username: "alice"},
				{UserID: "u2", XP: 800, MessageCount: 50, Username: "bob"},
			},
			{
				{UserID: "u3", XP: 300, MessageCount: 20},
			},
		}}

		Convey("When the import runs", func() {
			stats, err := engine.MigrateFromMee6(ctx, src, "g1", "mee6")

			Convey("Then all players land in the store", func() {
				So(err, ShouldBeNil)
				So(stats.TotalUsers, ShouldEqual, 3)
				So(stats.NewUsers, ShouldEqual, 3)
				So(stats.UpdatedUsers, ShouldEqual, 0)

				rec, err := records.User(ctx, rank.PlatformDiscord, "g1", "u1", false)
				So(err, ShouldBeNil)
				So(rec.XP, ShouldEqual, 1200)
				So(rec.MessageCount, ShouldEqual, 80)
				So(rec.Username, ShouldEqual, "alice")
				So(rec.Extra["mee6_import_date"], ShouldNotBeNil)
			})

			Convey("Then a player without a username gets a placeholder", func() {
				So(err, ShouldBeNil)
				rec, err := records.User(ctx, rank.PlatformDiscord, "g1", "u3", false)
				So(err, ShouldBeNil)
				So(rec.Username, ShouldEqual, "User u3")
			})

			Convey("Then a second run is rejected as completed", func() {
				So(err, ShouldBeNil)
				_, err := engine.MigrateFromMee6(ctx, src, "g1", "mee6")
				So(errors.Is(err, rank.ErrMigrationCompleted), ShouldBeTrue)
			})
		})

		Convey("When a player already earned live XP", func() {
			_, err := records.UpdateUser(ctx, rank.PlatformDiscord, "g1", "u2", store.Document{
				"xp": 40, "username": "bob-live",
			})
			So(err, ShouldBeNil)

			stats, err := engine.MigrateFromMee6(ctx, src, "g1", "mee6")

			Convey("Then their record is left alone and counted as updated", func() {
				So(err, ShouldBeNil)
				So(stats.NewUsers, ShouldEqual, 2)
				So(stats.UpdatedUsers, ShouldEqual, 1)

				rec, err := records.User(ctx, rank.PlatformDiscord, "g1", "u2", false)
				So(err, ShouldBeNil)
				So(rec.XP, ShouldEqual, 40)
				So(rec.Username, ShouldEqual, "bob-live")
			})
		})

		Convey("When a page fetch fails mid-way", func() {
			src := &fakeLeaderboard{
				pages: [][]rank.ImportedPlayer{
					{{UserID: "u1", XP: 100, Username: "alice"}},
				},
				failFrom: 1,
			}

			stats, err := engine.MigrateFromMee6(ctx, src, "g1", "mee6")

			Convey("Then the loop stops but partial progress is committed", func() {
				So(err, ShouldBeNil)
				So(stats.TotalUsers, ShouldEqual, 1)

				rec, err := records.User(ctx, rank.PlatformDiscord, "g1", "u1", false)
				So(err, ShouldBeNil)
				So(rec.XP, ShouldEqual, 100)
			})
		})
	})
}

func TestEngine_MigrateFromRedditHistory(t *testing.T) {
	Convey("Given a history store with submissions and comments", t, func() {
		records := newRecords(t)
		engine := rank.NewEngine(records,
			rank.WithRandSource(rand.NewSource(1)),
			rank.WithBulkXPRange(200, 200),
		)
		ctx := context.Background()

		history, err := store.Open(ctx, "reddit", t.TempDir())
		So(err, ShouldBeNil)
		err = history.WithLock(ctx, func(tx *store.Tx) error {
			subs := tx.Table("submissions")
			subs.Insert(store.Document{"author": "alice", "title": "one"})
			subs.Insert(store.Document{"author": "bob", "title": "two"})
			subs.Insert(store.Document{"author": "[deleted]", "title": "gone"})

			comments := tx.Table("comments")
			comments.Insert(store.Document{"author": "alice", "body": "hi"})
			comments.Insert(store.Document{"author": "ghost", "body": "boo"})
			comments.Insert(store.Document{"author": "", "body": "anon"})
			return nil
		})
		So(err, ShouldBeNil)

		lookup := &fakeLookup{fail: map[string]bool{"ghost": true}}

		Convey("When the import runs", func() {
			stats, err := engine.MigrateFromRedditHistory(ctx, history, lookup, "sub1", "reddit_database")

			Convey("Then per-author totals are accumulated with bulk XP", func() {
				So(err, ShouldBeNil)
				So(stats.TotalSubmissions, ShouldEqual, 3)
				So(stats.TotalComments, ShouldEqual, 3)
				So(stats.SkippedSubmissions, ShouldEqual, 1)
				So(stats.SkippedComments, ShouldEqual, 2)
				So(stats.TotalUsers, ShouldEqual, 2)

				alice, err := records.User(ctx, rank.PlatformReddit, "sub1", "id-alice", false)
				So(err, ShouldBeNil)
				So(alice.XP, ShouldEqual, 400)
				So(alice.SubmissionCount, ShouldEqual, 1)
				So(alice.CommentCount, ShouldEqual, 1)
				So(alice.MessageCount, ShouldEqual, 2)
				So(alice.Username, ShouldEqual, "alice")

				bob, err := records.User(ctx, rank.PlatformReddit, "sub1", "id-bob", false)
				So(err, ShouldBeNil)
				So(bob.XP, ShouldEqual, 200)
				So(bob.SubmissionCount, ShouldEqual, 1)
				So(bob.CommentCount, ShouldEqual, 0)
			})

			Convey("Then the run is recorded and a rerun rejected", func() {
				So(err, ShouldBeNil)
				_, err := engine.MigrateFromRedditHistory(ctx, history, lookup, "sub1", "reddit_database")
				So(errors.Is(err, rank.ErrMigrationCompleted), ShouldBeTrue)
			})
		})

		Convey("When a user already has live XP", func() {
			_, err := records.UpdateUser(ctx, rank.PlatformReddit, "sub1", "id-alice", store.Document{
				"xp": 55,
			})
			So(err, ShouldBeNil)

			stats, err := engine.MigrateFromRedditHistory(ctx, history, lookup, "sub1", "reddit_database")

			Convey("Then the event log overwrites their XP", func() {
				So(err, ShouldBeNil)
				So(stats.UpdatedUsers, ShouldEqual, 1)
				So(stats.NewUsers, ShouldEqual, 1)

				alice, err := records.User(ctx, rank.PlatformReddit, "sub1", "id-alice", false)
				So(err, ShouldBeNil)
				So(alice.XP, ShouldEqual, 400)
			})
		})
	})
}
