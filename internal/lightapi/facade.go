// Package lightapi точка входа координации освещения: привязка миров,
// запись и чтение уровней, пересчёт, сбор и пересылка изменённых секций.
package lightapi

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/lightsync/internal/batch"
	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/critical"
	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/metrics"
	"github.com/annel0/lightsync/internal/observability"
	"github.com/annel0/lightsync/internal/storage"
	"github.com/annel0/lightsync/internal/vec"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options зависимости фасада. Обязателен только Binder.
type Options struct {
	Binder       engine.Binder
	Sync         *critical.Synchronizer
	Metrics      *metrics.Collectors
	Resender     Resender
	Journal      storage.LightJournal
	Tracer       trace.Tracer
	UpdateBudget int
}

type boundWorld struct {
	view     engine.WorldView
	binding  engine.Binding
	strategy Strategy // nil, если привязка не удалась
}

// Facade реестр привязанных миров и их стратегий.
type Facade struct {
	opts Options
	log  *logging.Logger

	mu     sync.RWMutex
	worlds map[string]*boundWorld
}

// New создаёт фасад без привязанных миров
func New(opts Options) *Facade {
	if opts.Sync == nil {
		opts.Sync = critical.New(critical.DefaultConfig(), opts.Metrics)
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.Tracer()
	}
	if opts.UpdateBudget <= 0 {
		opts.UpdateBudget = DefaultUpdateBudget
	}
	return &Facade{
		opts:   opts,
		log:    logging.GetLightLogger(),
		worlds: make(map[string]*boundWorld),
	}
}

// BindWorld разрешает привязку мира и выбирает стратегию по варианту движка.
// При ошибке мир остаётся зарегистрированным, но недоступным.
func (f *Facade) BindWorld(view engine.WorldView) error {
	bw := &boundWorld{view: view}
	binding, err := f.opts.Binder.Bind(view)
	if err == nil {
		bw.binding = binding
		bw.strategy, err = f.strategyFor(view, binding)
	}

	f.mu.Lock()
	f.worlds[view.Name()] = bw
	f.mu.Unlock()

	if err != nil {
		f.log.Error("world %s bound as unavailable: %v", view.Name(), err)
		return err
	}
	f.log.Info("world %s bound (%s, channels=%s)", view.Name(), binding.Variant, bw.supported())
	return nil
}

func (f *Facade) strategyFor(view engine.WorldView, b engine.Binding) (Strategy, error) {
	switch b.Variant {
	case engine.Direct:
		if b.Direct == nil {
			return nil, fmt.Errorf("%w: direct engine handle missing for %s", light.ErrBindingFailed, view.Name())
		}
		return &directStrategy{
			view:     view,
			eng:      b.Direct,
			sync:     f.opts.Sync,
			resender: f.opts.Resender,
			budget:   f.opts.UpdateBudget,
			log:      f.log,
		}, nil
	case engine.Queued:
		if b.Star == nil {
			return nil, fmt.Errorf("%w: star engine handle missing for %s", light.ErrBindingFailed, view.Name())
		}
		return &queuedStrategy{
			view:  view,
			star:  b.Star,
			coord: batch.NewCoordinator(view, b.Star, f.opts.Metrics),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown variant %d", light.ErrBindingFailed, b.Variant)
	}
}

// UnbindWorld забывает мир
func (f *Facade) UnbindWorld(name string) {
	f.mu.Lock()
	delete(f.worlds, name)
	f.mu.Unlock()
}

// Worlds имена привязанных миров по алфавиту
func (f *Facade) Worlds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.worlds))
	for name := range f.worlds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (f *Facade) lookup(name string) (*boundWorld, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bw, ok := f.worlds[name]
	if !ok || bw.strategy == nil {
		return nil, false
	}
	return bw, true
}

func (bw *boundWorld) supported() light.Channel {
	if bw.binding.Channels == light.NoChannels {
		return light.AllChannels
	}
	return bw.binding.Channels
}

// IsLightingSupported обслуживает ли привязка мира все каналы маски
func (f *Facade) IsLightingSupported(world string, ch light.Channel) bool {
	bw, ok := f.lookup(world)
	if !ok {
		return false
	}
	return bw.binding.Supports(ch)
}

func (f *Facade) startSpan(ctx context.Context, name, world string, ch light.Channel, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("light.world", world), attribute.String("light.channel", ch.String()))
	return f.opts.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, code light.ResultCode, err error) {
	span.SetAttributes(attribute.String("light.result", code.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SetLevel записывает уровень света в точку. Каналы, которые мир не
// обслуживает, пропускаются. Ошибка возвращается только вместе с Failed
// или WorldUnavailable и описывает причину.
// Затронутые секции фасад не пересылает: после записи вызывающий собирает их
// через Collect и отправляет через SendChunk.
func (f *Facade) SetLevel(ctx context.Context, world string, pos vec.Vec3, level int, ch light.Channel) (light.ResultCode, error) {
	return f.setLevel(ctx, world, pos, level, ch, true)
}

func (f *Facade) setLevel(ctx context.Context, world string, pos vec.Vec3, level int, ch light.Channel, record bool) (code light.ResultCode, err error) {
	lvl := light.Clamp(level)
	ctx, span := f.startSpan(ctx, "light.SetLevel", world, ch, attribute.Int("light.level", int(lvl)))
	defer func() { endSpan(span, code, err) }()

	bw, ok := f.lookup(world)
	if !ok {
		return light.WorldUnavailable, nil
	}
	variant := bw.strategy.Variant().String()
	defer func() { f.opts.Metrics.Write(variant, code.String()) }()

	effective := ch & bw.supported()
	if effective == light.NoChannels {
		return light.NotImplemented, nil
	}

	code, err = bw.strategy.SetLevel(ctx, pos, lvl, effective)
	if err != nil {
		f.log.Warn("set level %s %s=%d in %s: %v", pos, effective, lvl, world, err)
		return code, err
	}
	if code == light.Success && record && f.opts.Journal != nil {
		if jerr := f.opts.Journal.Record(ctx, world, pos, lvl, effective); jerr != nil {
			f.log.Warn("journal record %s in %s: %v", pos, world, jerr)
		}
	}
	return code, nil
}

// GetLevel читает видимый уровень; для двух каналов возвращается больший.
// Недоступный мир и пустая маска дают light.LevelUnknown.
func (f *Facade) GetLevel(ctx context.Context, world string, pos vec.Vec3, ch light.Channel) light.Level {
	bw, ok := f.lookup(world)
	if !ok || ch&light.AllChannels == light.NoChannels {
		return light.LevelUnknown
	}
	return bw.view.Level(pos, ch&light.AllChannels)
}

// Recalculate запускает пересчёт освещения мира; pos определяет колонну,
// которая должна быть загружена.
func (f *Facade) Recalculate(ctx context.Context, world string, pos vec.Vec3, ch light.Channel) (code light.ResultCode, err error) {
	ctx, span := f.startSpan(ctx, "light.Recalculate", world, ch)
	defer func() { endSpan(span, code, err) }()

	bw, ok := f.lookup(world)
	if !ok {
		return light.WorldUnavailable, nil
	}
	variant := bw.strategy.Variant().String()
	defer func() { f.opts.Metrics.Recalculate(variant, code.String()) }()

	effective := ch & bw.supported()
	if effective == light.NoChannels {
		return light.NotImplemented, nil
	}
	code, err = bw.strategy.Recalculate(ctx, pos, effective)
	if err != nil {
		f.log.Warn("recalculate %s in %s: %v", effective, world, err)
	}
	return code, err
}

// Collect помечает секции, куда может дотянуться свет уровня level из pos.
func (f *Facade) Collect(world string, pos vec.Vec3, level int, ch light.Channel) ([]*chunks.DirtyRegion, light.ResultCode) {
	bw, ok := f.lookup(world)
	if !ok {
		return nil, light.WorldUnavailable
	}
	set := chunks.NewRegionSet(world, bw.view.SectionRange())
	chunks.Collect(set, pos, level, ch, bw.strategy.LoadedFilter())
	return set.Regions(), light.Success
}

// SendChunk пересылает изменённые секции подписчикам
func (f *Facade) SendChunk(ctx context.Context, world string, regions []*chunks.DirtyRegion) (code light.ResultCode) {
	ctx, span := f.startSpan(ctx, "light.SendChunk", world, light.AllChannels, attribute.Int("light.regions", len(regions)))
	defer func() { endSpan(span, code, nil) }()

	bw, ok := f.lookup(world)
	if !ok {
		return light.WorldUnavailable
	}
	return bw.strategy.SendChunk(ctx, regions)
}

// SectionRange интервал секций мира
func (f *Facade) SectionRange(world string) (chunks.SectionRange, bool) {
	bw, ok := f.lookup(world)
	if !ok {
		return chunks.SectionRange{}, false
	}
	return bw.view.SectionRange(), true
}
