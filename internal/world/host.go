package world

import (
	"fmt"
	"sync"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

// Options параметры эталонного мира
type Options struct {
	Name     string
	Range    chunks.SectionRange
	Variant  engine.Variant
	Channels light.Channel // пусто означает оба канала
}

// World эталонный мир в памяти: набор загруженных колонн, хранилище
// света и движок выбранного варианта.
type World struct {
	name     string
	rng      chunks.SectionRange
	variant  engine.Variant
	channels light.Channel

	mu     sync.RWMutex
	loaded map[vec.ChunkPos]struct{}

	store   *LightStore // рабочее хранилище
	visible *LightStore // то, что видят читатели; для Direct совпадает со store

	mailbox  *Mailbox
	direct   *DirectEngine
	executor *PriorityExecutor
	star     *QueuedEngine
}

// NewWorld создаёт мир без загруженных колонн
func NewWorld(opts Options) *World {
	channels := opts.Channels
	if channels == light.NoChannels {
		channels = light.AllChannels
	}
	w := &World{
		name:     opts.Name,
		rng:      opts.Range,
		variant:  opts.Variant,
		channels: channels,
		loaded:   make(map[vec.ChunkPos]struct{}),
		store:    NewLightStore(),
	}
	switch opts.Variant {
	case engine.Queued:
		w.visible = NewLightStore()
		w.executor = NewPriorityExecutor()
		w.star = NewQueuedEngine(w.rng, w.store, w.visible, w.executor, channels)
	default:
		w.visible = w.store
		w.mailbox = NewMailbox("light-" + opts.Name)
		w.direct = NewDirectEngine(w.mailbox, w.store, channels)
	}
	return w
}

func (w *World) Name() string                      { return w.name }
func (w *World) SectionRange() chunks.SectionRange { return w.rng }
func (w *World) Variant() engine.Variant           { return w.variant }
func (w *World) Channels() light.Channel           { return w.channels }

// Mailbox рабочий цикл (только Direct)
func (w *World) Mailbox() *Mailbox { return w.mailbox }

// DirectEngine прямой движок (только Direct)
func (w *World) DirectEngine() *DirectEngine { return w.direct }

// Executor очередь задач (только Queued)
func (w *World) Executor() *PriorityExecutor { return w.executor }

// QueuedEngine отложенный движок (только Queued)
func (w *World) QueuedEngine() *QueuedEngine { return w.star }

// IsChunkLoaded проверяет, загружена ли колонна
func (w *World) IsChunkLoaded(chunkX, chunkZ int) bool {
	w.mu.RLock()
	_, ok := w.loaded[vec.ChunkPos{X: chunkX, Z: chunkZ}]
	w.mu.RUnlock()
	return ok
}

// Level читает видимый уровень одного канала; для двух каналов берётся максимум.
func (w *World) Level(pos vec.Vec3, ch light.Channel) light.Level {
	level := light.LevelUnknown
	for _, c := range ch.Each() {
		if v := w.visible.Get(pos, c); v > level {
			level = v
		}
	}
	return level
}

// LoadChunk выделяет секции колонны во всём интервале мира
func (w *World) LoadChunk(chunkX, chunkZ int) {
	w.mu.Lock()
	w.loaded[vec.ChunkPos{X: chunkX, Z: chunkZ}] = struct{}{}
	w.mu.Unlock()
	for y := w.rng.Bottom; y <= w.rng.Top; y++ {
		sp := vec.SectionPos{X: chunkX, Y: y, Z: chunkZ}
		for _, ch := range w.channels.Each() {
			w.store.EnsureSection(ch, sp)
			if w.visible != w.store {
				w.visible.EnsureSection(ch, sp)
			}
		}
	}
}

// LoadArea загружает квадрат колонн радиуса radius вокруг (0,0)
func (w *World) LoadArea(radius int) {
	for x := -radius; x <= radius; x++ {
		for z := -radius; z <= radius; z++ {
			w.LoadChunk(x, z)
		}
	}
}

// UnloadChunk выгружает колонну и освобождает её секции
func (w *World) UnloadChunk(chunkX, chunkZ int) {
	w.mu.Lock()
	delete(w.loaded, vec.ChunkPos{X: chunkX, Z: chunkZ})
	w.mu.Unlock()
	for y := w.rng.Bottom; y <= w.rng.Top; y++ {
		sp := vec.SectionPos{X: chunkX, Y: y, Z: chunkZ}
		for _, ch := range w.channels.Each() {
			w.store.DropSection(ch, sp)
			w.visible.DropSection(ch, sp)
		}
	}
}

// DropSection удаляет одну секцию из рабочего хранилища, не трогая флаг загрузки.
// Так выглядит гонка с выгрузкой, которую координатор должен переживать.
func (w *World) DropSection(ch light.Channel, pos vec.SectionPos) {
	w.store.DropSection(ch, pos)
}

// Close останавливает рабочий цикл мира
func (w *World) Close() {
	if w.mailbox != nil {
		w.mailbox.Close()
	}
}

// Binding дескрипторы движка для координатора
func (w *World) Binding() engine.Binding {
	b := engine.Binding{Variant: w.variant, Channels: w.channels}
	if w.variant == engine.Queued {
		b.Star = w.star
	} else {
		b.Direct = w.direct
	}
	return b
}

// Host реестр эталонных миров; реализует engine.Binder.
type Host struct {
	mu     sync.RWMutex
	worlds map[string]*World
}

// NewHost создаёт пустой реестр
func NewHost() *Host {
	return &Host{worlds: make(map[string]*World)}
}

// Add регистрирует мир
func (h *Host) Add(w *World) {
	h.mu.Lock()
	h.worlds[w.Name()] = w
	h.mu.Unlock()
}

// World ищет мир по имени
func (h *Host) World(name string) (*World, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w, ok := h.worlds[name]
	return w, ok
}

// Bind разрешает привязку мира. Неизвестный мир даёт ErrBindingFailed.
func (h *Host) Bind(view engine.WorldView) (engine.Binding, error) {
	w, ok := h.World(view.Name())
	if !ok {
		return engine.Binding{}, fmt.Errorf("%w: world %q is not hosted", light.ErrBindingFailed, view.Name())
	}
	return w.Binding(), nil
}

// Close закрывает все миры
func (h *Host) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, w := range h.worlds {
		w.Close()
	}
}
