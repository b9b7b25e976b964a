package rank_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/communityrank/internal/rank"
)

func TestTracker(t *testing.T) {
	Convey("Given a tracker with a 60s window", t, func() {
		tracker := rank.NewTracker(60 * time.Second)
		now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

		Convey("Then an untouched key is not on cooldown", func() {
			So(tracker.OnCooldown("discord:g1:u1", now), ShouldBeFalse)
		})

		Convey("When a key is touched", func() {
			tracker.Touch("discord:g1:u1", now)

			Convey("Then it is on cooldown within the window", func() {
				So(tracker.OnCooldown("discord:g1:u1", now), ShouldBeTrue)
				So(tracker.OnCooldown("discord:g1:u1", now.Add(59*time.Second)), ShouldBeTrue)
			})

			Convey("Then it is free once the window elapses", func() {
				So(tracker.OnCooldown("discord:g1:u1", now.Add(60*time.Second)), ShouldBeFalse)
			})

			Convey("Then other keys are unaffected", func() {
				So(tracker.OnCooldown("discord:g1:u2", now), ShouldBeFalse)
				So(tracker.OnCooldown("reddit:g1:u1", now), ShouldBeFalse)
			})

			Convey("Then Reset clears all state", func() {
				tracker.Reset()
				So(tracker.OnCooldown("discord:g1:u1", now), ShouldBeFalse)
			})
		})

		Convey("Then the window accessor reports the configured value", func() {
			So(tracker.Window(), ShouldEqual, 60*time.Second)
		})
	})
}
