// Package batch копит изменения света для движка, который нельзя
// приостановить, и разливает их задачами в очереди хоста.
package batch

import (
	"sync"

	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/metrics"
	"github.com/annel0/lightsync/internal/vec"
)

// Outcome что произошло с запросом на запись
type Outcome int

const (
	// Dropped текущий уровень уже не ниже запрошенного или секции света нет
	Dropped Outcome = iota
	// Pending точка ждёт пересчёта
	Pending
	// Applied уровень 0 передан движку как смена блока
	Applied
	// Unsupported ни один из каналов не обслуживается движком
	Unsupported
)

func (o Outcome) String() string {
	switch o {
	case Dropped:
		return "dropped"
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	default:
		return "unsupported"
	}
}

// Point запрошенный уровень в точке
type Point struct {
	Pos   vec.Vec3
	Level light.Level
}

// pendingSet точки одной колонны; повторная запись в ту же точку заменяет уровень
type pendingSet map[vec.Vec3]light.Level

// Coordinator состояние Idle -> Pending -> Draining для каждой пары (мир, канал).
type Coordinator struct {
	world   engine.WorldView
	star    engine.StarInterface
	metrics *metrics.Collectors
	log     *logging.Logger

	mu      sync.Mutex
	pending map[light.Channel]map[vec.ChunkPos]pendingSet
}

// NewCoordinator создаёт координатор мира
func NewCoordinator(world engine.WorldView, star engine.StarInterface, m *metrics.Collectors) *Coordinator {
	return &Coordinator{
		world:   world,
		star:    star,
		metrics: m,
		log:     logging.GetLightLogger(),
		pending: map[light.Channel]map[vec.ChunkPos]pendingSet{
			light.Block: make(map[vec.ChunkPos]pendingSet),
			light.Sky:   make(map[vec.ChunkPos]pendingSet),
		},
	}
}

// Enqueue принимает запрос на запись уровня.
//
// Уровень 0 сразу уходит в движок как смена блока. Для остальных уровней
// точка откладывается по каждому каналу, если у движка есть секция точки
// и он видит в ней меньший уровень.
func (c *Coordinator) Enqueue(pos vec.Vec3, level int, ch light.Channel) Outcome {
	lvl := light.Clamp(level)
	if lvl == light.MinLevel {
		c.star.BlockChange(pos)
		return Applied
	}

	outcome := Unsupported
	for _, single := range ch.Each() {
		eng, ok := c.star.Engine(single)
		if !ok {
			continue
		}
		if !c.star.HasSection(single, pos.Section()) || eng.Level(pos) >= lvl {
			if outcome == Unsupported {
				outcome = Dropped
			}
			continue
		}
		c.add(single, pos, lvl)
		outcome = Pending
	}
	return outcome
}

func (c *Coordinator) add(ch light.Channel, pos vec.Vec3, lvl light.Level) {
	chunk := pos.Chunk()
	c.mu.Lock()
	set, ok := c.pending[ch][chunk]
	if !ok {
		set = make(pendingSet)
		c.pending[ch][chunk] = set
	}
	set[pos] = lvl
	n := c.countLocked(ch)
	c.mu.Unlock()
	c.metrics.SetPending(c.world.Name(), ch.String(), n)
}

func (c *Coordinator) countLocked(ch light.Channel) int {
	n := 0
	for _, set := range c.pending[ch] {
		n += len(set)
	}
	return n
}

// HasPending есть ли отложенные точки колонны в одном из каналов маски
func (c *Coordinator) HasPending(chunk vec.ChunkPos, ch light.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, single := range ch.Each() {
		if _, ok := c.pending[single][chunk]; ok {
			return true
		}
	}
	return false
}

// PendingPoints число отложенных точек канала
func (c *Coordinator) PendingPoints(ch light.Channel) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, single := range ch.Each() {
		n += c.countLocked(single)
	}
	return n
}

// HasWork true, если у движка есть работа или что-то отложено
func (c *Coordinator) HasWork() bool {
	return c.star.HasWork() || c.PendingPoints(light.AllChannels) > 0
}

// take атомарно забирает набор колонны; второй вызов для того же ключа получит nil.
func (c *Coordinator) take(ch light.Channel, chunk vec.ChunkPos) pendingSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.pending[ch][chunk]
	if !ok {
		return nil
	}
	delete(c.pending[ch], chunk)
	return set
}

func (c *Coordinator) keys(ch light.Channel) []vec.ChunkPos {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]vec.ChunkPos, 0, len(c.pending[ch]))
	for k := range c.pending[ch] {
		out = append(out, k)
	}
	return out
}

// Recalculate разливает все наборы обоих каналов, существующие на момент
// вызова, по одной задаче на колонну и канал с наивысшим приоритетом.
// Маска ch попадает только в лог. Выполнение задач не ждёт.
// noChanges true, если движок простаивает и отложенных точек нет.
func (c *Coordinator) Recalculate(ch light.Channel) (submitted int, noChanges bool) {
	if !c.HasWork() {
		return 0, true
	}

	queue := c.star.Queue()
	for _, single := range light.AllChannels.Each() {
		eng, ok := c.star.Engine(single)
		if !ok {
			continue
		}
		for _, chunk := range c.keys(single) {
			set := c.take(single, chunk)
			if set == nil {
				continue
			}
			task := newPropagationTask(c.world, eng, single, chunk, set, c.log, c.metrics)
			queue.Submit(chunk, task.Run, engine.PriorityHighest)
			c.metrics.TaskSubmitted()
			submitted++
		}
		c.metrics.SetPending(c.world.Name(), single.String(), c.PendingPoints(single))
	}
	if submitted > 0 {
		c.log.Debug("drained %d pending sets in %s (%s)", submitted, c.world.Name(), ch)
	}
	return submitted, false
}
