package store

import (
	"errors"
	"log"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerBackend is a Backend backed by BadgerDB v4, for host-process
// embeddings that want durable state across runs.
type BadgerBackend struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB backend.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required for on-disk
	// mode.
	Dir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing with a
	// real badger engine.
	InMemory bool

	// Logger sets the badger logger. Nil uses a quiet default that only
	// surfaces warnings and errors.
	Logger badger.Logger
}

// NewBadger opens a BadgerDB-backed Backend.
func NewBadger(opts BadgerOptions) (*BadgerBackend, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(quietLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Put(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *BadgerBackend) Get(key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *BadgerBackend) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// quietLogger wraps the standard log package for badger, suppressing debug
// and info level messages.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
