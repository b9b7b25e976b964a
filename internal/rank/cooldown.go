package rank

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Tracker remembers the last XP-granting event per cooldown key. State is
// memory-only for the process lifetime; a restart clears all cooldowns.
type Tracker struct {
	last   *xsync.MapOf[string, int64]
	window time.Duration
}

// NewTracker creates a tracker enforcing the given cooldown window.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		last:   xsync.NewMapOf[string, int64](),
		window: window,
	}
}

// OnCooldown reports whether the key was touched within the window.
func (t *Tracker) OnCooldown(key string, now time.Time) bool {
	last, ok := t.last.Load(key)
	if !ok {
		return false
	}
	return now.Unix()-last < int64(t.window.Seconds())
}

// Touch records an XP-granting event for the key.
func (t *Tracker) Touch(key string, now time.Time) {
	t.last.Store(key, now.Unix())
}

// Window returns the configured cooldown window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Reset drops all cooldown state.
func (t *Tracker) Reset() {
	t.last.Clear()
}

// cooldownKey builds the per-user cooldown key.
func cooldownKey(p Platform, communityID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", p, communityID, userID)
}
