package world

import (
	"errors"
	"sync"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

var errCachesBusy = errors.New("world: scratch caches already set up")

// starEngine движок одного канала отложенного варианта. Между SetupCaches
// и DestroyCaches работает с копиями секций 3x3 колонн вокруг центра;
// UpdateVisible переносит их в рабочее и видимое хранилища.
type starEngine struct {
	ch    light.Channel
	owner *QueuedEngine

	mu       sync.Mutex
	cache    map[vec.SectionPos]*nibbles
	touched  map[vec.SectionPos]struct{}
	increase []lightNode
}

func (s *starEngine) SetupCaches(center vec.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		return errCachesBusy
	}
	s.cache = make(map[vec.SectionPos]*nibbles)
	s.touched = make(map[vec.SectionPos]struct{})
	rng := s.owner.rng
	cx, cz := center.ChunkX(), center.ChunkZ()
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			for y := rng.Bottom; y <= rng.Top; y++ {
				sp := vec.SectionPos{X: cx + dx, Y: y, Z: cz + dz}
				if data, ok := s.owner.working.copySection(s.ch, sp); ok {
					cp := data
					s.cache[sp] = &cp
				}
			}
		}
	}
	return nil
}

func (s *starEngine) DestroyCaches() {
	s.mu.Lock()
	s.cache = nil
	s.touched = nil
	s.increase = nil
	s.mu.Unlock()
}

// Level читает из кэша, если он поднят и содержит секцию, иначе из видимого снимка.
func (s *starEngine) Level(pos vec.Vec3) light.Level {
	s.mu.Lock()
	if s.cache != nil {
		if n, ok := s.cache[pos.Section()]; ok {
			lvl := n.get(nibbleIndex(pos))
			s.mu.Unlock()
			return lvl
		}
	}
	s.mu.Unlock()
	return s.owner.visible.Get(pos, s.ch)
}

func (s *starEngine) SetLevel(pos vec.Vec3, level light.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(pos, level)
}

func (s *starEngine) setLocked(pos vec.Vec3, level light.Level) error {
	n, ok := s.cache[pos.Section()]
	if !ok {
		return light.ErrSectionMissing
	}
	n.set(nibbleIndex(pos), level)
	s.touched[pos.Section()] = struct{}{}
	return nil
}

func (s *starEngine) AppendIncrease(pos vec.Vec3, level light.Level) {
	s.mu.Lock()
	s.increase = append(s.increase, lightNode{pos: pos, level: level})
	s.mu.Unlock()
}

// PerformIncrease разливает очередь увеличений в пределах кэша.
func (s *starEngine) PerformIncrease() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		return errors.New("world: increase without caches")
	}
	for len(s.increase) > 0 {
		n := s.increase[0]
		s.increase = s.increase[1:]
		if n.level <= 1 {
			continue
		}
		next := n.level - 1
		for _, nb := range n.pos.Neighbors() {
			sec, ok := s.cache[nb.Section()]
			if !ok {
				continue
			}
			if sec.get(nibbleIndex(nb)) >= next {
				continue
			}
			_ = s.setLocked(nb, next)
			s.increase = append(s.increase, lightNode{pos: nb, level: next})
		}
	}
	return nil
}

// UpdateVisible публикует изменённые секции
func (s *starEngine) UpdateVisible() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sp := range s.touched {
		data := *s.cache[sp]
		s.owner.working.putSection(s.ch, sp, data)
		s.owner.visible.putSection(s.ch, sp, data)
	}
	s.touched = make(map[vec.SectionPos]struct{})
	return nil
}

// QueuedEngine отложенный вариант эталонного хоста: нельзя приостановить,
// изменения выполняются задачами PriorityExecutor.
type QueuedEngine struct {
	rng     chunks.SectionRange
	working *LightStore
	visible *LightStore
	queue   *PriorityExecutor
	engines map[light.Channel]*starEngine

	mu           sync.Mutex
	blockChanges int
}

// NewQueuedEngine создаёт движки для каналов из маски
func NewQueuedEngine(rng chunks.SectionRange, working, visible *LightStore, queue *PriorityExecutor, channels light.Channel) *QueuedEngine {
	q := &QueuedEngine{
		rng:     rng,
		working: working,
		visible: visible,
		queue:   queue,
		engines: make(map[light.Channel]*starEngine),
	}
	for _, ch := range channels.Each() {
		q.engines[ch] = &starEngine{ch: ch, owner: q}
	}
	return q
}

func (q *QueuedEngine) Engine(ch light.Channel) (engine.StarEngine, bool) {
	e, ok := q.engines[ch]
	if !ok {
		return nil, false
	}
	return e, true
}

func (q *QueuedEngine) HasSection(ch light.Channel, pos vec.SectionPos) bool {
	return q.working.HasSection(ch, pos)
}

// HasWork true, пока в очереди есть задачи или необработанные смены блоков
func (q *QueuedEngine) HasWork() bool {
	q.mu.Lock()
	pending := q.blockChanges
	q.mu.Unlock()
	return pending > 0 || q.queue.Pending() > 0
}

// BlockChange обнуляет свет в точке задачей высокого приоритета.
func (q *QueuedEngine) BlockChange(pos vec.Vec3) {
	q.mu.Lock()
	q.blockChanges++
	q.mu.Unlock()

	q.queue.Submit(pos.Chunk(), func() bool {
		defer func() {
			q.mu.Lock()
			q.blockChanges--
			q.mu.Unlock()
		}()
		for ch := range q.engines {
			if err := q.working.Set(pos, ch, 0); err != nil {
				continue
			}
			_ = q.visible.Set(pos, ch, 0)
		}
		return true
	}, engine.PriorityHigh)
}

func (q *QueuedEngine) Queue() engine.TaskQueue { return q.queue }

// BlockChanges число смен блока, ещё не применённых
func (q *QueuedEngine) BlockChanges() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blockChanges
}
