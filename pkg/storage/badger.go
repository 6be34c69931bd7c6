package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/vmihailenco/msgpack/v5"

	"nurscan/pkg/domain"
)

var ErrNotFound = errors.New("not found")

// OpenInMemory badger without a directory, everything is gone on close
func OpenInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return db, nil
}

type BadgerStorage struct {
	entityPrefix []byte
	db           *badger.DB
}

func NewStorage(entityType string, db *badger.DB) *BadgerStorage {
	return &BadgerStorage{
		entityPrefix: []byte(entityType + "/"),
		db:           db,
	}
}

func (b *BadgerStorage) buildKey(key string) []byte {
	return []byte(fmt.Sprintf("%s%s", string(b.entityPrefix), key))
}

func (b *BadgerStorage) buildValue(value interface{}) ([]byte, error) {
	buf, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return buf, nil
}

// Create stores value under key, replacing what was there.
func (b *BadgerStorage) Create(key string, value interface{}) error {
	buf, err := b.buildValue(value)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.buildKey(key), buf)
	})
}

// Get decodes the value under key into dst.
func (b *BadgerStorage) Get(key string, dst interface{}) error {
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.buildKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, dst)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %s: %w", string(b.entityPrefix[:len(b.entityPrefix)-1]), key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return nil
}

// ListSessions archived sessions, oldest first.
func (b *BadgerStorage) ListSessions(filterFunc func(s domain.ScanSession) bool) ([]domain.ScanSession, error) {
	sessions := []domain.ScanSession{}
	if string(b.entityPrefix) != domain.SessionEntity+"/" {
		return nil, fmt.Errorf("need entity: %s, has entity: %s", domain.SessionEntity, b.entityPrefix)
	}

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(b.entityPrefix); it.ValidForPrefix(b.entityPrefix); it.Next() {
			var s domain.ScanSession
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &s)
			}); err != nil {
				return err
			}
			if filterFunc != nil && !filterFunc(s) {
				continue
			}

			sessions = append(sessions, s)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get sessions list: %w", err)
	}

	// ksuid keys already sort by time, started_at breaks ties inside a second
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})

	return sessions, nil
}

// SessionArchive typed view over a SESSION storage
type SessionArchive struct {
	s *BadgerStorage
}

func NewSessionArchive(db *badger.DB) *SessionArchive {
	return &SessionArchive{s: NewStorage(domain.SessionEntity, db)}
}

func (a *SessionArchive) Save(s domain.ScanSession) error {
	return a.s.Create(s.ID, s)
}

func (a *SessionArchive) Session(id string) (domain.ScanSession, error) {
	var s domain.ScanSession
	err := a.s.Get(id, &s)
	return s, err
}

func (a *SessionArchive) Sessions() ([]domain.ScanSession, error) {
	return a.s.ListSessions(nil)
}
