package batch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/metrics"
	"github.com/annel0/lightsync/internal/vec"
)

// cacheCenterY высота центра кэшей задачи
const cacheCenterY = 128

// PropagationTask пакет точек одной колонны одного канала.
type PropagationTask struct {
	world   engine.WorldView
	star    engine.StarEngine
	channel light.Channel
	chunk   vec.ChunkPos
	points  []Point

	log     *logging.Logger
	metrics *metrics.Collectors
}

func newPropagationTask(world engine.WorldView, star engine.StarEngine, ch light.Channel, chunk vec.ChunkPos, set pendingSet, log *logging.Logger, m *metrics.Collectors) *PropagationTask {
	points := make([]Point, 0, len(set))
	for pos, lvl := range set {
		points = append(points, Point{Pos: pos, Level: lvl})
	}
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i].Pos, points[j].Pos
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	return &PropagationTask{
		world:   world,
		star:    star,
		channel: ch,
		chunk:   chunk,
		points:  points,
		log:     log,
		metrics: m,
	}
}

// Points точки пакета
func (t *PropagationTask) Points() []Point { return t.points }

// Run выполняется исполнителем хоста. Возвращает false, если пакет не применён.
func (t *PropagationTask) Run() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("propagation task %s %s panicked: %v", t.chunk, t.channel, r)
			ok = false
		}
		if !ok {
			t.metrics.TaskFailed()
		}
	}()

	if !t.world.IsChunkLoaded(t.chunk.X, t.chunk.Z) {
		t.log.Debug("skip propagation for unloaded %s", t.chunk)
		return false
	}
	if err := t.apply(); err != nil {
		t.log.Warn("propagation task %s %s failed: %v", t.chunk, t.channel, err)
		return false
	}
	return true
}

func (t *PropagationTask) apply() error {
	if err := t.star.SetupCaches(t.chunk.Center(cacheCenterY)); err != nil {
		return fmt.Errorf("setup caches: %w", err)
	}
	defer t.star.DestroyCaches()

	for _, p := range t.points {
		if p.Level <= t.star.Level(p.Pos) {
			continue
		}
		if err := t.star.SetLevel(p.Pos, p.Level); err != nil {
			// секция пропала между проверкой и записью: нечего обновлять
			if errors.Is(err, light.ErrSectionMissing) {
				continue
			}
			return fmt.Errorf("set level at %s: %w", p.Pos, err)
		}
		t.star.AppendIncrease(p.Pos, p.Level)
	}
	if err := t.star.PerformIncrease(); err != nil {
		return fmt.Errorf("increase: %w", err)
	}
	if err := t.star.UpdateVisible(); err != nil {
		return fmt.Errorf("update visible: %w", err)
	}
	return nil
}
