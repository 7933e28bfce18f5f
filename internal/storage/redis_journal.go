package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/vec"
	"github.com/go-redis/redis/v8"
)

// RedisConfig настройки подключения к Redis
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// DefaultRedisConfig конфигурация по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "lightsync:journal:",
	}
}

// RedisJournal общий журнал для нескольких узлов: один hash на мир,
// поле <channel>:<x>:<y>:<z>, значение JSON записи.
type RedisJournal struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisJournal подключается и проверяет соединение
func NewRedisJournal(config *RedisConfig) (*RedisJournal, error) {
	def := DefaultRedisConfig()
	if config == nil {
		config = def
	}
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("Light journal connected to Redis at %s", config.Addr)
	return &RedisJournal{client: client, keyPrefix: config.KeyPrefix}, nil
}

func (r *RedisJournal) key(world string) string { return r.keyPrefix + world }

func (r *RedisJournal) Record(ctx context.Context, world string, pos vec.Vec3, level light.Level, ch light.Channel) error {
	if level <= 0 {
		return r.Delete(ctx, world, pos, ch)
	}
	now := time.Now()
	values := make([]interface{}, 0, 4)
	for _, single := range ch.Each() {
		data, err := json.Marshal(Entry{World: world, Pos: pos, Channel: single, Level: level, UpdatedAt: now})
		if err != nil {
			return err
		}
		values = append(values, entryField(single, pos), data)
	}
	if len(values) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, r.key(world), values...).Err(); err != nil {
		return fmt.Errorf("failed to record light entry: %w", err)
	}
	return nil
}

func (r *RedisJournal) Delete(ctx context.Context, world string, pos vec.Vec3, ch light.Channel) error {
	fields := make([]string, 0, 2)
	for _, single := range ch.Each() {
		fields = append(fields, entryField(single, pos))
	}
	if len(fields) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key(world), fields...).Err(); err != nil {
		return fmt.Errorf("failed to delete light entry: %w", err)
	}
	return nil
}

func (r *RedisJournal) Load(ctx context.Context, world string) ([]Entry, error) {
	raw, err := r.client.HGetAll(ctx, r.key(world)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load light journal: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for field, data := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			logging.Warn("Failed to unmarshal light entry %s: %v", field, err)
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (r *RedisJournal) Close() error { return r.client.Close() }
