package rank

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/communityrank/internal/store"
	"github.com/okian/communityrank/pkg/logger"
	"github.com/okian/communityrank/pkg/metrics"
)

// Default tuning for the engine; overridable through options.
const (
	defaultXPMin          = 15
	defaultXPMax          = 25
	defaultBulkXPMin      = 150
	defaultBulkXPMax      = 250
	defaultCooldownWindow = 60 * time.Second
	defaultBatchSize      = 100
)

// Engine awards XP for activity, answers leaderboard queries and runs
// historical imports. Safe for concurrent use.
type Engine struct {
	records   *RecordStore
	cooldown  *Tracker
	resolvers map[Platform]CommunityResolver

	xpMin     int
	xpMax     int
	bulkXPMin int
	bulkXPMax int
	batchSize int

	// migrationMu makes the completed-check and the import itself one
	// critical section, so two concurrent runs cannot both pass the check.
	migrationMu sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
	log logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithXPRange sets the inclusive XP range for a single activity award.
func WithXPRange(min, max int) Option {
	return func(e *Engine) {
		e.xpMin, e.xpMax = min, max
	}
}

// WithBulkXPRange sets the inclusive XP range for bulk awards.
func WithBulkXPRange(min, max int) Option {
	return func(e *Engine) {
		e.bulkXPMin, e.bulkXPMax = min, max
	}
}

// WithCooldownWindow sets the per-user award cooldown.
func WithCooldownWindow(window time.Duration) Option {
	return func(e *Engine) {
		e.cooldown = NewTracker(window)
	}
}

// WithResolver registers the community resolver for a platform.
func WithResolver(p Platform, r CommunityResolver) Option {
	return func(e *Engine) {
		e.resolvers[p] = r
	}
}

// WithBatchSize sets how many imported users are written per lock
// acquisition during migrations.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRandSource overrides the XP randomness source, for tests.
func WithRandSource(src rand.Source) Option {
	return func(e *Engine) {
		e.rng = rand.New(src)
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine builds an engine over the given record store.
func NewEngine(records *RecordStore, opts ...Option) *Engine {
	e := &Engine{
		records:   records,
		resolvers: make(map[Platform]CommunityResolver),
		xpMin:     defaultXPMin,
		xpMax:     defaultXPMax,
		bulkXPMin: defaultBulkXPMin,
		bulkXPMax: defaultBulkXPMax,
		batchSize: defaultBatchSize,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cooldown == nil {
		e.cooldown = NewTracker(defaultCooldownWindow)
	}
	if e.log == nil {
		e.log = logger.Get().Named("rank")
	}
	return e
}

// AwardResult describes the outcome of a granted award.
type AwardResult struct {
	User    UserRecord
	XPGain  int
	Level   int
	LevelUp bool
	// OldLevel is the level before the award; meaningful when LevelUp.
	OldLevel int
}

// ResolveCommunity maps an actor to the community its activity counts
// toward, via the platform's registered resolver.
func (e *Engine) ResolveCommunity(ctx context.Context, p Platform, actor Actor) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
	r, ok := e.resolvers[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoResolver, p)
	}
	return r.ResolveCommunity(ctx, actor)
}

// AwardXP grants a random XP amount for one activity event. Returns
// (nil, nil) when the actor is on cooldown. The read of the current record
// and the write of the incremented one happen under a single store lock
// acquisition, so concurrent awards for the same user cannot lose updates.
func (e *Engine) AwardXP(ctx context.Context, p Platform, communityID string, actor Actor) (*AwardResult, error) {
	tableName, err := p.usersTable()
	if err != nil {
		metrics.RecordAwardError()
		return nil, err
	}
	if communityID == "" {
		metrics.RecordAwardError()
		return nil, fmt.Errorf("%w: empty community for %s user %s", ErrNoCommunity, p, actor.ID)
	}

	now := e.now()
	key := cooldownKey(p, communityID, actor.ID)
	if e.cooldown.OnCooldown(key, now) {
		metrics.RecordCooldownHit()
		return nil, nil
	}

	gain := e.randRange(e.xpMin, e.xpMax)

	var res AwardResult
	err = e.records.Store().WithLock(ctx, func(tx *store.Tx) error {
		t := tx.Table(tableName)
		cur := getUserTx(t, communityID, actor.ID, true)

		fields := store.Document{
			"xp":            cur.XP + gain,
			"message_count": cur.MessageCount + 1,
			"last_activity": now.Unix(),
		}
		if cur.Username == "" && actor.Username != "" {
			fields["username"] = actor.Username
		}
		updated := upsertUserTx(t, communityID, actor.ID, fields)

		res = AwardResult{
			User:     *updated,
			XPGain:   gain,
			Level:    Level(updated.XP),
			OldLevel: Level(cur.XP),
		}
		res.LevelUp = res.Level > res.OldLevel
		return nil
	})
	if err != nil {
		metrics.RecordAwardError()
		return nil, err
	}

	// The cooldown starts only after a successful grant, so a failed write
	// does not swallow the user's next event.
	e.cooldown.Touch(key, now)

	metrics.RecordXPAward(gain)
	if res.LevelUp {
		metrics.RecordLevelUp()
		e.log.Info(ctx, "user leveled up",
			logger.String("platform", p.String()),
			logger.String("community_id", communityID),
			logger.String("user_id", actor.ID),
			logger.Int("level", res.Level),
		)
	}
	return &res, nil
}

// RankData returns the actor's record, creating it when absent and
// denormalizing the username on first sight.
func (e *Engine) RankData(ctx context.Context, p Platform, communityID string, actor Actor) (*UserRecord, error) {
	rec, err := e.records.User(ctx, p, communityID, actor.ID, true)
	if err != nil {
		return nil, err
	}
	if rec.Username == "" && actor.Username != "" {
		rec, err = e.records.UpdateUser(ctx, p, communityID, actor.ID, store.Document{
			"username": actor.Username,
		})
		if err != nil {
			return nil, err
		}
	}
	rec.Level = Level(rec.XP)
	return rec, nil
}

// Leaderboard returns a page of the community leaderboard ordered by XP
// descending, with Rank and Level annotated.
func (e *Engine) Leaderboard(ctx context.Context, p Platform, communityID string, limit, offset int) ([]UserRecord, error) {
	users, err := e.records.Leaderboard(ctx, p, communityID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Rank = offset + i + 1
		users[i].Level = Level(users[i].XP)
	}
	return users, nil
}

// RankPosition returns the actor's 1-based position on the community
// leaderboard, or false when the user has no record.
func (e *Engine) RankPosition(ctx context.Context, p Platform, communityID, userID string) (int, bool, error) {
	users, err := e.records.Leaderboard(ctx, p, communityID, 0, 0)
	if err != nil {
		return 0, false, err
	}
	for i, u := range users {
		if u.UserID == userID {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

// randRange returns a uniform value in [min, max].
func (e *Engine) randRange(min, max int) int {
	if max <= min {
		return min
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return min + e.rng.Intn(max-min+1)
}
