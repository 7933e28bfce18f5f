package lightapi

import (
	"context"
	"fmt"

	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/storage"
	"github.com/annel0/lightsync/internal/vec"
)

// Replay восстанавливает записи журнала в мире и запускает пересчёт.
// Возвращает число применённых записей.
func Replay(ctx context.Context, journal storage.LightJournal, f *Facade, world string) (int, error) {
	entries, err := journal.Load(ctx, world)
	if err != nil {
		return 0, fmt.Errorf("load journal for %s: %w", world, err)
	}

	applied := 0
	var last vec.Vec3
	for _, e := range entries {
		code, err := f.setLevel(ctx, world, e.Pos, int(e.Level), e.Channel, false)
		if err != nil {
			return applied, fmt.Errorf("replay %s %s: %w", e.Pos, e.Channel, err)
		}
		if code == light.Success {
			applied++
			last = e.Pos
		}
	}
	if applied > 0 {
		if _, err := f.Recalculate(ctx, world, last, light.AllChannels); err != nil {
			return applied, err
		}
	}
	f.log.Info("replayed %d/%d journal entries into %s", applied, len(entries), world)
	return applied, nil
}
