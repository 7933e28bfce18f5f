package world

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/logging"
)

// Mailbox однопоточный рабочий цикл освещения мира.
//
// Цикл запускается, только если в слове состояния нет ни Closing, ни Busy,
// и сам держит Busy, пока разбирает очередь. Внешний код может занять Busy
// через CAS и тем самым не дать циклу стартовать; после освобождения он
// обязан вызвать Step, иначе непустая очередь так и останется стоять.
type Mailbox struct {
	name  string
	state atomic.Int32

	mu    sync.Mutex
	queue []func()

	log *logging.Logger
}

// NewMailbox создаёт цикл с пустой очередью
func NewMailbox(name string) *Mailbox {
	return &Mailbox{name: name, log: logging.GetHostLogger()}
}

// State слово состояния (bit0 Closing, bit1 Busy)
func (m *Mailbox) State() engine.FlagWord { return &m.state }

// Name имя цикла
func (m *Mailbox) Name() string { return m.name }

// Tell ставит задачу в очередь и пытается запустить цикл.
func (m *Mailbox) Tell(task func()) {
	m.mu.Lock()
	m.queue = append(m.queue, task)
	m.mu.Unlock()
	m.Step()
}

// Step запускает одну итерацию разбора очереди, если это сейчас возможно.
func (m *Mailbox) Step() {
	if m.canBeScheduled() && m.setAsScheduled() {
		go m.run()
	}
}

// Pending длина очереди
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close выставляет Closing и ждёт, пока текущий владелец Busy его отпустит.
func (m *Mailbox) Close() {
	for {
		f := m.state.Load()
		if f&engine.FlagClosing != 0 || m.state.CompareAndSwap(f, f|engine.FlagClosing) {
			break
		}
	}
	for m.state.Load()&engine.FlagBusy != 0 {
		time.Sleep(time.Millisecond)
	}
}

// Flush дожидается выполнения всех задач, поставленных до вызова.
func (m *Mailbox) Flush(ctx context.Context) error {
	done := make(chan struct{})
	m.Tell(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mailbox %s flush: %w", m.name, ctx.Err())
	}
}

func (m *Mailbox) canBeScheduled() bool {
	if m.state.Load()&engine.FlagClosing != 0 {
		return false
	}
	return m.Pending() > 0
}

func (m *Mailbox) setAsScheduled() bool {
	for {
		f := m.state.Load()
		if f&(engine.FlagClosing|engine.FlagBusy) != 0 {
			return false
		}
		if m.state.CompareAndSwap(f, f|engine.FlagBusy) {
			return true
		}
	}
}

func (m *Mailbox) setAsIdle() {
	for {
		f := m.state.Load()
		if m.state.CompareAndSwap(f, f&^engine.FlagBusy) {
			return
		}
	}
}

func (m *Mailbox) run() {
	for m.poll() {
	}
	m.setAsIdle()
	m.Step()
}

// poll выполняет одну задачу; false, если очередь пуста или цикл закрывается.
func (m *Mailbox) poll() bool {
	if m.state.Load()&engine.FlagClosing != 0 {
		return false
	}
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	task := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("mailbox %s: task panicked: %v", m.name, r)
		}
	}()
	task()
	return true
}
