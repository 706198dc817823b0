package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/channels"
)

// FileKey is the Badger key the channel file is stored under.
const FileKey = "channels:file"

// ErrNoValidFile is returned by Load when nothing usable is stored.
var ErrNoValidFile = channels.ErrNoValidFile

// BadgerStore is a channels.Persister backed by Badger.
type BadgerStore struct {
	db   *badger.DB
	path string
	log  logrus.FieldLogger
}

var _ channels.Persister = (*BadgerStore)(nil)

// Open opens (or creates) the store at path. Writes are synced before Save returns.
func Open(path string, log logrus.FieldLogger) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("store: path is required")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.ValueLogFileSize = 1 << 20 * 16

	s, err := open(opts, path, log)
	if err != nil {
		return nil, err
	}
	if err := LogDiskUsage(path, s.log); err != nil {
		s.log.WithError(err).Warn("Could not read disk usage")
	}
	return s, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory(log logrus.FieldLogger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, "", log)
}

func open(opts badger.Options, path string, log logrus.FieldLogger) (*BadgerStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &BadgerStore{
		db:   db,
		path: path,
		log:  log.WithField("component", "store"),
	}, nil
}

// Load reads the channel file. A missing key, an undecodable value or a foreign schema
// version all yield ErrNoValidFile.
func (s *BadgerStore) Load(ctx context.Context) (channels.File, error) {
	if err := ctx.Err(); err != nil {
		return channels.File{}, err
	}

	raw, err := s.get(FileKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return channels.File{}, fmt.Errorf("%w: %s not found", ErrNoValidFile, FileKey)
	}
	if err != nil {
		return channels.File{}, fmt.Errorf("store: read %s: %w", FileKey, err)
	}

	f, err := Decode(raw)
	if err != nil {
		return channels.File{}, fmt.Errorf("%w: decode: %v", ErrNoValidFile, err)
	}
	if f.Version != channels.FileVersion {
		return channels.File{}, fmt.Errorf("%w: version %d, want %d", ErrNoValidFile, f.Version, channels.FileVersion)
	}
	return f, nil
}

// Save replaces the stored channel file in one transaction.
func (s *BadgerStore) Save(ctx context.Context, f channels.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := Encode(f)
	if err := s.put(FileKey, data); err != nil {
		return fmt.Errorf("store: write %s: %w", FileKey, err)
	}

	s.log.WithFields(logrus.Fields{"channels": len(f.Channels), "bytes": len(data)}).Debug("Channel file saved")
	return nil
}

// Raw returns the stored bytes under FileKey without decoding them.
func (s *BadgerStore) Raw() ([]byte, error) {
	return s.get(FileKey)
}

// Keys lists every key in the database.
func (s *BadgerStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Path returns the on-disk location, empty for in-memory stores.
func (s *BadgerStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key string) ([]byte, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	return raw, err
}

func (s *BadgerStore) put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}
