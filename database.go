package flux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Options configures a Database.
type Options struct {
	// Logger receives structured diagnostics (propagation lag, decode
	// failures, degraded views). Defaults to slog.Default().
	Logger *slog.Logger
	// Verbose lets log records below warning level through to Logger. The
	// module itself emits only warnings and errors, so it adds no
	// range-scan or propagation tracing.
	Verbose bool
	// ReadOnly opens the backing bbolt file read-only; OpenTree/OpenSingle
	// still succeed against existing buckets but nothing may be mutated.
	ReadOnly bool
	// MmapSize overrides bbolt's initial mmap size.
	MmapSize int
	// Now is stored on the Database in place of time.Now; no code in this
	// module reads it.
	Now func() time.Time
}

func (opt Options) logger() *slog.Logger {
	if opt.Logger != nil {
		return opt.Logger
	}
	return slog.Default()
}

func (opt Options) now() func() time.Time {
	if opt.Now != nil {
		return opt.Now
	}
	return time.Now
}

// Database owns one storage backend (an on-disk bbolt file, a temp bbolt
// file, or an in-process memory store) and the lifecycle of every
// materialized view's propagation worker opened against it.
type Database struct {
	st      storage
	logger  *slog.Logger
	verbose bool
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	tempDir string
}

// Open opens (creating if necessary) a Database backed by a bbolt file at
// path.
func Open(path string, opt Options) (*Database, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	bopt.ReadOnly = opt.ReadOnly
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("flux: open %s: %w", path, err)
	}
	return newDatabase(newBoltStorage(bdb), opt, ""), nil
}

// OpenTemp opens a Database backed by a throwaway bbolt file in a fresh
// temp directory, removed on Close. Load() does not use it; its sinks
// live in OpenMemory databases.
func OpenTemp(opt Options) (*Database, error) {
	dir, err := os.MkdirTemp("", "flux-temp-*")
	if err != nil {
		return nil, fmt.Errorf("flux: mkdir temp: %w", err)
	}
	db, err := Open(filepath.Join(dir, "temp.db"), opt)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	db.tempDir = dir
	return db, nil
}

// OpenMemory opens a Database backed purely by an in-process memory store,
// with no file on disk at all. This is what Load() uses for its sinks.
func OpenMemory(opt Options) *Database {
	return newDatabase(newMemStorage(), opt, "")
}

func newDatabase(st storage, opt Options, tempDir string) *Database {
	ctx, cancel := context.WithCancel(context.Background())
	return &Database{
		st:      st,
		logger:  opt.logger(),
		verbose: opt.Verbose,
		now:     opt.now(),
		ctx:     ctx,
		cancel:  cancel,
		tempDir: tempDir,
	}
}

// Close stops every propagation worker opened against this Database (its
// context is the parent of every MaterializedView's worker context) and
// closes the underlying storage.
func (db *Database) Close() error {
	db.cancel()
	err := db.st.Close()
	if db.tempDir != "" {
		os.RemoveAll(db.tempDir)
	}
	return err
}

func (db *Database) logAttrs(level slog.Level, msg string, args ...any) {
	if !db.verbose && level < slog.LevelWarn {
		return
	}
	db.logger.Log(db.ctx, level, msg, args...)
}

// TreeOption configures OpenTree/OpenSingle.
type TreeOption[K, V any] func(*treeConfig[K, V])

type treeConfig[K, V any] struct {
	keyCodec KeyCodec[K]
	codec    Codec[V]
	autoInc  AutoInc[K]
}

// WithKeyCodec overrides the default FlatKeyCodec for a tree's keys.
func WithKeyCodec[K, V any](kc KeyCodec[K]) TreeOption[K, V] {
	return func(c *treeConfig[K, V]) { c.keyCodec = kc }
}

// WithCodec overrides the default MsgpackCodec for a tree's values.
func WithCodec[K, V any](vc Codec[V]) TreeOption[K, V] {
	return func(c *treeConfig[K, V]) { c.codec = vc }
}

// WithAutoInc equips a tree with an auto-incrementing key generator, making
// Push legal.
func WithAutoInc[K, V any](ai AutoInc[K]) TreeOption[K, V] {
	return func(c *treeConfig[K, V]) { c.autoInc = ai }
}

// OpenTree opens (creating if necessary) a named Tree[K, V] in db.
func OpenTree[K, V any](db *Database, name string, opts ...TreeOption[K, V]) (*Tree[K, V], error) {
	cfg := treeConfig[K, V]{keyCodec: FlatKeyCodec[K]{}, codec: MsgpackCodec[V]{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Look for an existing bucket in a read-only transaction first, so that
	// a ReadOnly database can still open the trees it already holds.
	rtx, err := db.st.BeginTx(false)
	if err != nil {
		return nil, storageErrf("begin", err)
	}
	exists := rtx.Bucket(name, "") != nil
	rtx.Rollback()
	if !exists {
		tx, err := db.st.BeginTx(true)
		if err != nil {
			return nil, storageErrf("begin", err)
		}
		if _, err := tx.CreateBucket(name, ""); err != nil {
			tx.Rollback()
			return nil, storageErrf("create bucket "+name, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, storageErrf("commit", err)
		}
	}

	return &Tree[K, V]{
		db:       db,
		name:     name,
		keyCodec: cfg.keyCodec,
		codec:    cfg.codec,
		autoInc:  cfg.autoInc,
		bus:      newBroadcaster[K, V](),
	}, nil
}

// OpenSingle opens (creating if necessary) a named Single[T] in db.
func OpenSingle[T any](db *Database, name string, opts ...TreeOption[struct{}, T]) (*Single[T], error) {
	tree, err := OpenTree[struct{}, T](db, name, opts...)
	if err != nil {
		return nil, err
	}
	return &Single[T]{tree: tree}, nil
}
