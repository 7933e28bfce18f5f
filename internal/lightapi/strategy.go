package lightapi

import (
	"context"
	"errors"

	"github.com/annel0/lightsync/internal/batch"
	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/critical"
	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/vec"
)

// Strategy поведение координатора для одного варианта движка.
// Выбирается один раз при привязке мира.
type Strategy interface {
	Variant() engine.Variant
	SetLevel(ctx context.Context, pos vec.Vec3, level light.Level, ch light.Channel) (light.ResultCode, error)
	Recalculate(ctx context.Context, pos vec.Vec3, ch light.Channel) (light.ResultCode, error)
	SendChunk(ctx context.Context, regions []*chunks.DirtyRegion) light.ResultCode
	// LoadedFilter фильтр колонн для сбора соседних секций; nil не фильтрует
	LoadedFilter() chunks.ChunkFilter
}

// Resender принимает изменённые регионы для пересылки
type Resender interface {
	Add(regions ...*chunks.DirtyRegion)
}

// DefaultUpdateBudget число шагов распространения за один пересчёт
const DefaultUpdateBudget = 1 << 16

// directStrategy меняет слои прямого движка внутри эксклюзивной секции.
type directStrategy struct {
	view     engine.WorldView
	eng      engine.DirectEngine
	sync     *critical.Synchronizer
	resender Resender
	budget   int
	log      *logging.Logger
}

func (s *directStrategy) Variant() engine.Variant { return engine.Direct }

func (s *directStrategy) SetLevel(_ context.Context, pos vec.Vec3, level light.Level, ch light.Channel) (light.ResultCode, error) {
	if !s.view.IsChunkLoaded(pos.ChunkX(), pos.ChunkZ()) {
		return light.ChunkNotLoaded, nil
	}
	err := s.sync.RunExclusive(s.eng.Worker(), func() error {
		for _, single := range ch.Each() {
			layer, ok := s.eng.Layer(single)
			if !ok || !layer.HasSection(pos.Section()) {
				continue
			}
			if level == light.MinLevel {
				layer.Remove(pos)
				continue
			}
			if err := layer.SetLevel(pos, level); err != nil {
				// секцию выгрузили после проверки: нечего обновлять
				if errors.Is(err, light.ErrSectionMissing) {
					s.log.Debug("section %v vanished before write", pos.Section())
					continue
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return light.ResultFromError(err), err
	}
	return light.Success, nil
}

func (s *directStrategy) Recalculate(_ context.Context, pos vec.Vec3, ch light.Channel) (light.ResultCode, error) {
	if !s.view.IsChunkLoaded(pos.ChunkX(), pos.ChunkZ()) {
		return light.ChunkNotLoaded, nil
	}
	if !s.eng.HasWork() {
		return light.NoChangesToRecalculate, nil
	}
	err := s.sync.RunExclusive(s.eng.Worker(), func() error {
		s.runUpdates(ch)
		return nil
	})
	if err != nil {
		return light.ResultFromError(err), err
	}
	return light.Success, nil
}

// runUpdates делит бюджет между каналами: блочный свет получает половину,
// небесный остаток, и если небесному хватило, блочный добирает его излишек.
func (s *directStrategy) runUpdates(ch light.Channel) {
	block, hasBlock := s.eng.Layer(light.Block)
	sky, hasSky := s.eng.Layer(light.Sky)
	hasBlock = hasBlock && ch.Has(light.Block)
	hasSky = hasSky && ch.Has(light.Sky)

	switch {
	case hasBlock && hasSky:
		half := s.budget / 2
		blockLeft := block.RunUpdates(half)
		skyLeft := sky.RunUpdates(s.budget - half + blockLeft)
		if blockLeft == 0 && skyLeft > 0 {
			block.RunUpdates(skyLeft)
		}
	case hasBlock:
		block.RunUpdates(s.budget)
	case hasSky:
		sky.RunUpdates(s.budget)
	}
}

func (s *directStrategy) SendChunk(_ context.Context, regions []*chunks.DirtyRegion) light.ResultCode {
	if s.resender == nil {
		return light.NotImplemented
	}
	s.resender.Add(regions...)
	return light.Success
}

func (s *directStrategy) LoadedFilter() chunks.ChunkFilter { return nil }

// queuedStrategy копит записи в координаторе и разливает их задачами.
type queuedStrategy struct {
	view  engine.WorldView
	star  engine.StarInterface
	coord *batch.Coordinator
}

func (s *queuedStrategy) Variant() engine.Variant { return engine.Queued }

// SetLevel успешен, если у движка есть работа или колонна ждёт пересчёта.
func (s *queuedStrategy) SetLevel(_ context.Context, pos vec.Vec3, level light.Level, ch light.Channel) (light.ResultCode, error) {
	if !s.view.IsChunkLoaded(pos.ChunkX(), pos.ChunkZ()) {
		return light.ChunkNotLoaded, nil
	}
	s.coord.Enqueue(pos, int(level), ch)
	if s.star.HasWork() || s.coord.HasPending(pos.Chunk(), ch) {
		return light.Success, nil
	}
	return light.Failed, nil
}

func (s *queuedStrategy) Recalculate(_ context.Context, pos vec.Vec3, ch light.Channel) (light.ResultCode, error) {
	if !s.view.IsChunkLoaded(pos.ChunkX(), pos.ChunkZ()) {
		return light.ChunkNotLoaded, nil
	}
	if _, noChanges := s.coord.Recalculate(ch); noChanges {
		return light.NoChangesToRecalculate, nil
	}
	return light.Success, nil
}

// SendChunk у отложенного варианта нет пары для пересылки
func (s *queuedStrategy) SendChunk(context.Context, []*chunks.DirtyRegion) light.ResultCode {
	return light.NotImplemented
}

func (s *queuedStrategy) LoadedFilter() chunks.ChunkFilter { return s.view.IsChunkLoaded }
