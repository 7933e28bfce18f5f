package world

import (
	"context"
	"sync"

	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/vec"
)

const priorityBands = int(engine.PriorityLowest) + 1

type scheduledTask struct {
	chunk vec.ChunkPos
	task  engine.Task
}

// PriorityExecutor кооперативный исполнитель с полосами приоритета.
// Внутри полосы порядок не гарантируется вызывающему коду.
type PriorityExecutor struct {
	mu    sync.Mutex
	bands [priorityBands][]scheduledTask
	size  int
	wake  chan struct{}

	executed int64
	failed   int64
	log      *logging.Logger
}

// NewPriorityExecutor создаёт пустой исполнитель
func NewPriorityExecutor() *PriorityExecutor {
	return &PriorityExecutor{
		wake: make(chan struct{}, 1),
		log:  logging.GetHostLogger(),
	}
}

// Submit ставит задачу в полосу priority; значения вне диапазона прижимаются к краям.
func (e *PriorityExecutor) Submit(chunk vec.ChunkPos, task engine.Task, priority engine.Priority) {
	p := int(priority)
	if p < 0 {
		p = 0
	}
	if p >= priorityBands {
		p = priorityBands - 1
	}
	e.mu.Lock()
	e.bands[p] = append(e.bands[p], scheduledTask{chunk: chunk, task: task})
	e.size++
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending число задач в очереди
func (e *PriorityExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// PendingAt число задач в полосе
func (e *PriorityExecutor) PendingAt(priority engine.Priority) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(priority) < 0 || int(priority) >= priorityBands {
		return 0
	}
	return len(e.bands[priority])
}

func (e *PriorityExecutor) next() (scheduledTask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.bands {
		if len(e.bands[i]) == 0 {
			continue
		}
		t := e.bands[i][0]
		e.bands[i][0] = scheduledTask{}
		e.bands[i] = e.bands[i][1:]
		e.size--
		return t, true
	}
	return scheduledTask{}, false
}

// RunNext выполняет одну задачу с наивысшим приоритетом; false, если очередь пуста.
func (e *PriorityExecutor) RunNext() bool {
	t, ok := e.next()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.executed++
	e.mu.Unlock()
	if !t.task() {
		e.mu.Lock()
		e.failed++
		e.mu.Unlock()
		e.log.Debug("task for %s reported failure", t.chunk)
	}
	return true
}

// Drain выполняет задачи, пока очередь не опустеет; возвращает их число.
func (e *PriorityExecutor) Drain() int {
	n := 0
	for e.RunNext() {
		n++
	}
	return n
}

// Stats число выполненных и неудачных задач
func (e *PriorityExecutor) Stats() (executed, failed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executed, e.failed
}

// Run разбирает очередь в фоне до отмены контекста
func (e *PriorityExecutor) Run(ctx context.Context) {
	for {
		e.Drain()
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}
	}
}
