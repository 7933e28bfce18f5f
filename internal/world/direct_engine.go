package world

import (
	"sync"
	"sync/atomic"

	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/vec"
)

type lightNode struct {
	pos   vec.Vec3
	level light.Level
}

// directLayer слой одного канала: пишет прямо в хранилище и
// разливает свет в ширину по очереди увеличений.
type directLayer struct {
	ch     light.Channel
	store  *LightStore
	owner  *DirectEngine
	mu     sync.Mutex
	queue  []lightNode
	queued atomic.Int32
}

func (l *directLayer) HasSection(pos vec.SectionPos) bool {
	return l.store.HasSection(l.ch, pos)
}

func (l *directLayer) SetLevel(pos vec.Vec3, level light.Level) error {
	defer l.owner.enter()()
	if err := l.store.Set(pos, l.ch, level); err != nil {
		return err
	}
	l.push(lightNode{pos: pos, level: level})
	return nil
}

func (l *directLayer) Remove(pos vec.Vec3) {
	defer l.owner.enter()()
	if err := l.store.Set(pos, l.ch, 0); err != nil {
		// выгруженная секция уже тёмная
		logging.GetLightLogger().Debug("remove %s %s: %v", l.ch, pos, err)
	}
}

func (l *directLayer) push(n lightNode) {
	l.mu.Lock()
	l.queue = append(l.queue, n)
	l.mu.Unlock()
	l.queued.Add(1)
}

func (l *directLayer) pop() (lightNode, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return lightNode{}, false
	}
	n := l.queue[0]
	l.queue = l.queue[1:]
	l.queued.Add(-1)
	return n, true
}

// RunUpdates обрабатывает до budget узлов очереди; возвращает остаток бюджета.
func (l *directLayer) RunUpdates(budget int) int {
	defer l.owner.enter()()
	for budget > 0 {
		n, ok := l.pop()
		if !ok {
			break
		}
		budget--
		if n.level <= 1 {
			continue
		}
		next := n.level - 1
		for _, nb := range n.pos.Neighbors() {
			if !l.store.HasSection(l.ch, nb.Section()) {
				continue
			}
			if l.store.Get(nb, l.ch) >= next {
				continue
			}
			if err := l.store.Set(nb, l.ch, next); err == nil {
				l.push(lightNode{pos: nb, level: next})
			}
		}
	}
	return budget
}

func (l *directLayer) pending() bool { return l.queued.Load() > 0 }

// DirectEngine прямой движок эталонного хоста. Его слои принадлежат
// рабочему циклу Mailbox: снаружи их можно трогать только заняв Busy.
type DirectEngine struct {
	worker *Mailbox
	store  *LightStore
	layers map[light.Channel]*directLayer

	inside     atomic.Int32
	violations atomic.Int32
}

// NewDirectEngine создаёт слои для каналов из маски
func NewDirectEngine(worker *Mailbox, store *LightStore, channels light.Channel) *DirectEngine {
	e := &DirectEngine{
		worker: worker,
		store:  store,
		layers: make(map[light.Channel]*directLayer),
	}
	for _, ch := range channels.Each() {
		e.layers[ch] = &directLayer{ch: ch, store: store, owner: e}
	}
	return e
}

func (e *DirectEngine) Worker() engine.PausableWorker { return e.worker }

func (e *DirectEngine) Layer(ch light.Channel) (engine.LightLayer, bool) {
	l, ok := e.layers[ch]
	if !ok {
		return nil, false
	}
	return l, true
}

// HasWork true, если в каком-либо слое остались необработанные узлы
func (e *DirectEngine) HasWork() bool {
	for _, l := range e.layers {
		if l.pending() {
			return true
		}
	}
	return false
}

// Tick ставит в цикл фоновый проход распространения, как это делает хост между тиками.
func (e *DirectEngine) Tick(budget int) {
	e.worker.Tell(func() {
		for _, ch := range []light.Channel{light.Block, light.Sky} {
			if l, ok := e.layers[ch]; ok {
				l.RunUpdates(budget)
			}
		}
	})
}

// Violations сколько раз слои были изменены одновременно из двух мест.
func (e *DirectEngine) Violations() int { return int(e.violations.Load()) }

// enter отмечает вход в изменение слоя; возвращает функцию выхода.
func (e *DirectEngine) enter() func() {
	if e.inside.Add(1) > 1 {
		e.violations.Add(1)
	}
	return func() { e.inside.Add(-1) }
}
