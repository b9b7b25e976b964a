package rank_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/communityrank/internal/rank"
	"github.com/okian/communityrank/internal/store"
)

func newRecords(t *testing.T) *rank.RecordStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "rank", t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	records, err := rank.NewRecordStore(ctx, s, nil)
	if err != nil {
		t.Fatalf("NewRecordStore: %v", err)
	}
	return records
}

func TestRecordStore_User(t *testing.T) {
	Convey("Given a record store", t, func() {
		records := newRecords(t)
		ctx := context.Background()

		Convey("When an unknown user is fetched without create", func() {
			rec, err := records.User(ctx, rank.PlatformDiscord, "g1", "u1", false)

			Convey("Then nothing is returned", func() {
				So(err, ShouldBeNil)
				So(rec, ShouldBeNil)
			})
		})

		Convey("When an unknown user is fetched with create", func() {
			rec, err := records.User(ctx, rank.PlatformDiscord, "g1", "u1", true)

			Convey("Then a zero-value record is created", func() {
				So(err, ShouldBeNil)
				So(rec, ShouldNotBeNil)
				So(rec.UserID, ShouldEqual, "u1")
				So(rec.CommunityID, ShouldEqual, "g1")
				So(rec.XP, ShouldEqual, 0)
				So(rec.MessageCount, ShouldEqual, 0)
			})

			Convey("And fetching again returns the same record, not a duplicate", func() {
				again, err := records.User(ctx, rank.PlatformDiscord, "g1", "u1", true)
				So(err, ShouldBeNil)
				So(again.UserID, ShouldEqual, "u1")

				all, err := records.CommunityUsers(ctx, rank.PlatformDiscord, "g1", "")
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 1)
			})
		})

		Convey("When an invalid platform is used", func() {
			_, err := records.User(ctx, rank.Platform(99), "g1", "u1", true)

			Convey("Then it is a hard error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown platform")
			})
		})
	})
}

func TestRecordStore_UpdateUser(t *testing.T) {
	Convey("Given a record store", t, func() {
		records := newRecords(t)
		ctx := context.Background()

		Convey("When a new user is upserted", func() {
			rec, err := records.UpdateUser(ctx, rank.PlatformDiscord, "g1", "u1", store.Document{
				"xp":       120,
				"username": "alice",
			})

			Convey("Then the record carries the data and the key fields", func() {
				So(err, ShouldBeNil)
				So(rec.XP, ShouldEqual, 120)
				So(rec.Username, ShouldEqual, "alice")
				So(rec.UserID, ShouldEqual, "u1")
				So(rec.CommunityID, ShouldEqual, "g1")
			})
		})

		Convey("When data tries to spoof the key fields", func() {
			rec, err := records.UpdateUser(ctx, rank.PlatformDiscord, "g1", "u1", store.Document{
				"user_id":      "evil",
				"community_id": "other",
				"xp":           5,
			})

			Convey("Then the call arguments win", func() {
				So(err, ShouldBeNil)
				So(rec.UserID, ShouldEqual, "u1")
				So(rec.CommunityID, ShouldEqual, "g1")
			})
		})

		Convey("When an existing user is updated", func() {
			_, err := records.UpdateUser(ctx, rank.PlatformDiscord, "g1", "u1", store.Document{
				"xp": 10, "username": "alice", "github_username": "alice-gh",
			})
			So(err, ShouldBeNil)

			rec, err := records.UpdateUser(ctx, rank.PlatformDiscord, "g1", "u1", store.Document{
				"xp": 25,
			})

			Convey("Then untouched fields survive the merge", func() {
				So(err, ShouldBeNil)
				So(rec.XP, ShouldEqual, 25)
				So(rec.Username, ShouldEqual, "alice")
				So(rec.Extra["github_username"], ShouldEqual, "alice-gh")
			})
		})
	})
}

func TestRecordStore_CommunityUsers(t *testing.T) {
	Convey("Given users across two communities", t, func() {
		records := newRecords(t)
		ctx := context.Background()

		seed := []struct {
			community, user, name string
		}{
			{"g1", "u1", "Charlie"},
			{"g1", "u2", "alice"},
			{"g1", "u3", "Bob"},
			{"g2", "u4", "mallory"},
		}
		for _, s := range seed {
			_, err := records.UpdateUser(ctx, rank.PlatformDiscord, s.community, s.user, store.Document{
				"username": s.name,
			})
			So(err, ShouldBeNil)
		}

		Convey("When listing one community", func() {
			users, err := records.CommunityUsers(ctx, rank.PlatformDiscord, "g1", "")

			Convey("Then only its users come back, username ascending", func() {
				So(err, ShouldBeNil)
				So(len(users), ShouldEqual, 3)
				So(users[0].Username, ShouldEqual, "alice")
				So(users[1].Username, ShouldEqual, "Bob")
				So(users[2].Username, ShouldEqual, "Charlie")
			})
		})

		Convey("When searching case-insensitively", func() {
			users, err := records.CommunityUsers(ctx, rank.PlatformDiscord, "g1", "BO")

			Convey("Then the substring matches regardless of case", func() {
				So(err, ShouldBeNil)
				So(len(users), ShouldEqual, 1)
				So(users[0].Username, ShouldEqual, "Bob")
			})
		})
	})
}

func TestRecordStore_Leaderboard(t *testing.T) {
	Convey("Given a community with ranked users", t, func() {
		records := newRecords(t)
		ctx := context.Background()

		xp := map[string]int{"u1": 500, "u2": 900, "u3": 100, "u4": 700}
		for user, amount := range xp {
			_, err := records.UpdateUser(ctx, rank.PlatformDiscord, "g1", user, store.Document{
				"xp": amount,
			})
			So(err, ShouldBeNil)
		}

		Convey("When asking for the full leaderboard", func() {
			users, err := records.Leaderboard(ctx, rank.PlatformDiscord, "g1", 0, 0)

			Convey("Then users come back XP descending", func() {
				So(err, ShouldBeNil)
				So(len(users), ShouldEqual, 4)
				So(users[0].UserID, ShouldEqual, "u2")
				So(users[1].UserID, ShouldEqual, "u4")
				So(users[2].UserID, ShouldEqual, "u1")
				So(users[3].UserID, ShouldEqual, "u3")
			})
		})

		Convey("When paginating", func() {
			first, err := records.Leaderboard(ctx, rank.PlatformDiscord, "g1", 2, 0)
			So(err, ShouldBeNil)
			second, err := records.Leaderboard(ctx, rank.PlatformDiscord, "g1", 2, 2)
			So(err, ShouldBeNil)

			Convey("Then consecutive pages concatenate to the full list", func() {
				So(len(first), ShouldEqual, 2)
				So(len(second), ShouldEqual, 2)
				So(first[0].UserID, ShouldEqual, "u2")
				So(first[1].UserID, ShouldEqual, "u4")
				So(second[0].UserID, ShouldEqual, "u1")
				So(second[1].UserID, ShouldEqual, "u3")
			})
		})

		Convey("When the offset is past the end", func() {
			users, err := records.Leaderboard(ctx, rank.PlatformDiscord, "g1", 10, 100)

			Convey("Then the page is empty, not an error", func() {
				So(err, ShouldBeNil)
				So(users, ShouldBeEmpty)
			})
		})
	})
}

func TestRecordStore_MigrationRecords(t *testing.T) {
	Convey("Given a record store", t, func() {
		records := newRecords(t)
		ctx := context.Background()

		Convey("Then an unknown migration has no status", func() {
			rec, err := records.MigrationStatus(ctx, rank.PlatformDiscord, "g1", "mee6")
			So(err, ShouldBeNil)
			So(rec, ShouldBeNil)
		})

		Convey("When a migration completes", func() {
			rec, err := records.SetMigrationCompleted(ctx, rank.PlatformDiscord, "g1", "mee6",
				rank.SourceTypeMee6, "2024-06-01T12:00:00Z", map[string]any{"total_users": 3})
			So(err, ShouldBeNil)
			So(rec.Key, ShouldEqual, "discord:g1:mee6")

			Convey("Then the status is visible afterwards", func() {
				status, err := records.MigrationStatus(ctx, rank.PlatformDiscord, "g1", "mee6")
				So(err, ShouldBeNil)
				So(status, ShouldNotBeNil)
				So(status.SourceType, ShouldEqual, rank.SourceTypeMee6)
			})

			Convey("Then other keys remain unaffected", func() {
				status, err := records.MigrationStatus(ctx, rank.PlatformReddit, "g1", "mee6")
				So(err, ShouldBeNil)
				So(status, ShouldBeNil)
			})
		})
	})
}
