package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
	"github.com/dgraph-io/badger/v3"
)

// BadgerJournal журнал на BadgerDB. Ключ: light:<world>:<channel>:<x>:<y>:<z>
type BadgerJournal struct {
	db      *badger.DB
	mu      sync.RWMutex
	isReady bool
}

// NewBadgerJournal открывает (или создаёт) базу в каталоге path
func NewBadgerJournal(path string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &BadgerJournal{db: db, isReady: true}, nil
}

func worldPrefix(world string) []byte {
	return []byte("light:" + world + ":")
}

func badgerKey(world string, ch light.Channel, pos vec.Vec3) []byte {
	return append(worldPrefix(world), entryField(ch, pos)...)
}

func (b *BadgerJournal) Record(ctx context.Context, world string, pos vec.Vec3, level light.Level, ch light.Channel) error {
	if level <= 0 {
		return b.Delete(ctx, world, pos, ch)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	now := time.Now()
	return b.db.Update(func(txn *badger.Txn) error {
		for _, single := range ch.Each() {
			data, err := json.Marshal(Entry{World: world, Pos: pos, Channel: single, Level: level, UpdatedAt: now})
			if err != nil {
				return err
			}
			if err := txn.Set(badgerKey(world, single, pos), data); err != nil {
				return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
			}
		}
		return nil
	})
}

func (b *BadgerJournal) Delete(_ context.Context, world string, pos vec.Vec3, ch light.Channel) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, single := range ch.Each() {
			if err := txn.Delete(badgerKey(world, single, pos)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerJournal) Load(_ context.Context, world string) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var out []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := worldPrefix(world)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("ошибка чтения %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(out)
	return out, nil
}

func (b *BadgerJournal) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isReady {
		return nil
	}
	b.isReady = false
	return b.db.Close()
}
