package expansion

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool
	// Workspace scopes the key so several workspaces can share one database.
	Workspace string
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerStore persists the expansion set in an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

// OpenBadger opens or creates the database described by cfg.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required unless in-memory")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(!cfg.InMemory).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, key: badgerKey(cfg.Workspace)}, nil
}

func badgerKey(workspace string) []byte {
	if workspace == "" {
		return []byte(StorageKey)
	}
	return []byte(StorageKey + "/" + workspace)
}

// Close releases the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) Load() (Set, bool, error) {
	var (
		s     Set
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if err != nil {
		return nil, false, err
	}
	return s, found, nil
}

func (b *BadgerStore) Save(s Set) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, data)
	})
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
