// Package store implements a per-database, thread-safe, table-based document
// store backed by a local JSON file, optionally replicated to a remote data
// repository for durability and audit.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/okian/communityrank/pkg/logger"
	"github.com/okian/communityrank/pkg/metrics"
)

// Store owns the tables of one named database. All table access goes through
// WithLock so a caller holds the store mutex for its whole read-modify-write.
type Store struct {
	name       string
	dir        string
	path       string
	legacyPath string

	mu     sync.Mutex
	tables map[string]*Table
	dirty  bool

	replica   *Replica
	suspended atomic.Bool

	log logger.Logger
}

// Option applies a configuration option when opening a Store.
type Option func(*options)

type options struct {
	remoteURL    string
	remoteBranch string
	remoteDir    string
	legacyDir    string
	log          logger.Logger
}

// WithRemote replicates the database directory to a remote repository.
// dirName is the clone directory created under the store directory.
func WithRemote(url, branch, dirName string) Option {
	return func(o *options) {
		o.remoteURL = url
		o.remoteBranch = branch
		if dirName != "" {
			o.remoteDir = dirName
		}
	}
}

// WithLegacyDir overrides where the legacy single-file database is looked
// for. Defaults to the store directory passed to Open.
func WithLegacyDir(dir string) Option {
	return func(o *options) {
		o.legacyDir = dir
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Open opens or creates the on-disk file for the named database.
//
// If a legacy-format file exists at the same logical location and the new
// file does not, migration runs synchronously before the store is usable.
// Migration failures are logged and do not prevent opening.
//
// When a remote is configured, the database directory is a clone of the
// remote repository; a missing remote branch is created as an orphan branch
// and pushed. Replication failures degrade the store to local-only.
func Open(ctx context.Context, name, dir string, opts ...Option) (*Store, error) {
	o := &options{
		remoteDir: "rank-data",
		legacyDir: dir,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get()
	}
	log := o.log.Named("store")

	var replica *Replica
	effectiveDir := dir
	if o.remoteURL != "" {
		effectiveDir = filepath.Join(dir, o.remoteDir)
		r, err := openReplica(ctx, o.remoteURL, o.remoteBranch, effectiveDir, log)
		if err != nil {
			// Local-first durability: a broken remote never blocks opening.
			log.Warn(ctx, "remote replication unavailable, continuing local-only",
				logger.String("db", name), logger.Error(err))
		} else {
			replica = r
		}
	}

	if err := os.MkdirAll(effectiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenStore, err)
	}

	s := &Store{
		name:       name,
		dir:        effectiveDir,
		path:       filepath.Join(effectiveDir, name+".json"),
		legacyPath: filepath.Join(o.legacyDir, name+".db"),
		tables:     make(map[string]*Table),
		replica:    replica,
		log:        log,
	}

	if fileExists(s.legacyPath) && !fileExists(s.path) {
		log.Info(ctx, "migrating legacy database",
			logger.String("db", name), logger.String("from", s.legacyPath))
		if err := s.migrateLegacy(ctx); err != nil {
			log.Error(ctx, "legacy migration failed",
				logger.String("db", name),
				logger.Error(err),
				logger.String("stack", string(debug.Stack())))
		}
	}

	if fileExists(s.path) {
		if err := s.loadFromDisk(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrOpenStore, s.path, err)
		}
	}

	if s.dirty {
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		s.dirty = false
	}

	return s, nil
}

// Tx provides table access while the store lock is held. Handles must not
// escape the WithLock callback.
type Tx struct {
	s *Store
}

// Table returns a handle to a named collection, creating it lazily.
func (tx *Tx) Table(name string) *Table {
	return tx.s.table(name)
}

// Tables lists the names of all tables in the database.
func (tx *Tx) Tables() []string {
	names := make([]string, 0, len(tx.s.tables))
	for name := range tx.s.tables {
		names = append(names, name)
	}
	return names
}

func (s *Store) table(name string) *Table {
	t, ok := s.tables[name]
	if !ok {
		t = newTable(s, name)
		s.tables[name] = t
		s.dirty = true
	}
	return t
}

// WithLock runs fn while holding the store mutex, then syncs any mutations
// to disk and the remote before releasing. The lock blocks indefinitely and
// is not re-entrant: fn must not call back into store operations.
func (s *Store) WithLock(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(&Tx{s: s}); err != nil {
		return err
	}
	return s.syncLocked(ctx)
}

// Sync flushes in-memory tables to disk and, when replication is enabled
// and not suspended, commits and pushes the table files. Push failures are
// logged and swallowed; durability is local-first.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		err := s.flushLocked()
		metrics.RecordStoreSync(err)
		if err != nil {
			return err
		}
		s.dirty = false
	}
	s.replicate(ctx)
	return nil
}

// Close performs a final sync.
func (s *Store) Close(ctx context.Context) error {
	return s.Sync(ctx)
}

// SuspendReplication turns off remote pushes until the returned restore
// function runs. Local flushes continue; bulk imports use this so their
// throughput is not gated by push latency.
func (s *Store) SuspendReplication() (restore func()) {
	prev := s.suspended.Swap(true)
	return func() { s.suspended.Store(prev) }
}

// Name returns the database name.
func (s *Store) Name() string { return s.name }

// Path returns the on-disk location of the database file.
func (s *Store) Path() string { return s.path }

func (s *Store) syncLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	err := s.flushLocked()
	metrics.RecordStoreSync(err)
	if err != nil {
		return err
	}
	s.dirty = false
	s.replicate(ctx)
	return nil
}

func (s *Store) replicate(ctx context.Context) {
	if s.replica == nil || s.suspended.Load() {
		return
	}
	if err := s.replica.CommitAndPush(ctx); err != nil {
		s.log.Warn(ctx, "replication push failed",
			logger.String("db", s.name), logger.Error(err))
	}
}

// flushLocked writes all tables to the database file. Caller holds s.mu.
func (s *Store) flushLocked() error {
	out := make(map[string]map[string]Document, len(s.tables))
	for name, t := range s.tables {
		rows := make(map[string]Document, len(t.docs))
		for id, doc := range t.docs {
			rows[strconv.Itoa(id)] = doc
		}
		out[name] = rows
	}

	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFlushStore, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrFlushStore, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %w", ErrFlushStore, err)
	}
	return nil
}

// loadFromDisk replaces in-memory tables with the database file contents.
// Only called from Open, before the store is shared.
func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var raw map[string]map[string]Document
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for name, rows := range raw {
		t := newTable(s, name)
		parsed := make(map[int]Document, len(rows))
		for key, doc := range rows {
			id, err := strconv.Atoi(key)
			if err != nil {
				return fmt.Errorf("table %s: bad document id %q", name, key)
			}
			parsed[id] = doc
		}
		t.load(parsed)
		s.tables[name] = t
	}
	s.dirty = false
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
