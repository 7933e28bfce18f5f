package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

// Entry применённая запись уровня света в одном канале.
type Entry struct {
	World     string        `json:"world"`
	Pos       vec.Vec3      `json:"pos"`
	Channel   light.Channel `json:"channel"`
	Level     light.Level   `json:"level"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// LightJournal хранит пользовательские источники света, чтобы восстановить
// их после перезапуска. Запись уровня 0 удаляет источник.
type LightJournal interface {
	// Record сохраняет запись для каждого канала маски
	Record(ctx context.Context, world string, pos vec.Vec3, level light.Level, ch light.Channel) error
	Delete(ctx context.Context, world string, pos vec.Vec3, ch light.Channel) error
	// Load возвращает все записи мира в детерминированном порядке
	Load(ctx context.Context, world string) ([]Entry, error)
	Close() error
}

// Config выбор и параметры бэкенда журнала
type Config struct {
	Backend       string // memory | badger | redis
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open создаёт журнал по конфигурации
func Open(cfg Config) (LightJournal, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryJournal(), nil
	case "badger":
		return NewBadgerJournal(cfg.Path)
	case "redis":
		return NewRedisJournal(&RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}

// entryField ключ записи внутри мира: <channel>:<x>:<y>:<z>
func entryField(ch light.Channel, pos vec.Vec3) string {
	return fmt.Sprintf("%s:%d:%d:%d", ch, pos.X, pos.Y, pos.Z)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Pos.Y != b.Pos.Y {
			return a.Pos.Y < b.Pos.Y
		}
		if a.Pos.Z != b.Pos.Z {
			return a.Pos.Z < b.Pos.Z
		}
		return a.Pos.X < b.Pos.X
	})
}
