package rank

import "errors"

// Sentinel kinds for rank errors.
var (
	// ErrUnknownPlatform marks an integration bug: a platform value outside
	// the supported set. Never silently defaulted.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrNoCommunity marks a legitimate domain state: the acting user has
	// no resolvable community (e.g. a direct message).
	ErrNoCommunity = errors.New("no resolvable community")

	// ErrNoResolver means no community resolver was registered for the
	// platform.
	ErrNoResolver = errors.New("no community resolver registered")

	// ErrMigrationCompleted means a historical import already ran for the
	// same (platform, community, source) key.
	ErrMigrationCompleted = errors.New("migration already completed")
)
