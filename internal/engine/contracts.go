// Package engine описывает контракты хост-движка освещения, с которыми
// работает координатор: флаговое слово рабочего цикла, очередь задач,
// слои прямого движка и движок с кэшами для отложенного варианта.
package engine

import (
	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

// Биты флагового слова рабочего цикла
const (
	FlagClosing int32 = 1 << 0
	FlagBusy    int32 = 1 << 1
)

// FlagWord атомарное слово состояния, изменяемое только через CAS.
type FlagWord interface {
	Load() int32
	CompareAndSwap(old, new int32) bool
}

// LoopStepper даёт циклу шанс перепланироваться после освобождения Busy.
type LoopStepper interface {
	Step()
}

// PausableWorker однопоточный рабочий цикл, который можно занять снаружи.
type PausableWorker interface {
	LoopStepper
	State() FlagWord
}

// Variant выбирает стратегию координации для мира
type Variant int

const (
	// Direct изменения применяются сразу в эксклюзивной секции
	Direct Variant = iota
	// Queued изменения копятся и разливаются задачами
	Queued
)

func (v Variant) String() string {
	switch v {
	case Direct:
		return "direct"
	case Queued:
		return "queued"
	default:
		return "unknown"
	}
}

// ParseVariant разбирает имя варианта из конфигурации
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "direct", "":
		return Direct, true
	case "queued":
		return Queued, true
	default:
		return Direct, false
	}
}

// Priority полоса приоритета в очереди задач; меньшее значение раньше.
type Priority int

const (
	PriorityHighest Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityLowest
)

// Task задача на очередь хоста; false означает, что работа не выполнена.
type Task func() bool

// TaskQueue приоритетная очередь задач, привязанных к колонне.
type TaskQueue interface {
	Submit(chunk vec.ChunkPos, task Task, priority Priority)
}

// LightLayer слой одного канала прямого движка.
type LightLayer interface {
	HasSection(pos vec.SectionPos) bool
	SetLevel(pos vec.Vec3, level light.Level) error
	Remove(pos vec.Vec3)
	// RunUpdates выполняет до budget шагов распространения и
	// возвращает неизрасходованный остаток.
	RunUpdates(budget int) int
}

// DirectEngine прямой движок: слои по каналам и рабочий цикл, которым они владеют.
type DirectEngine interface {
	Worker() PausableWorker
	Layer(ch light.Channel) (LightLayer, bool)
	HasWork() bool
}

// StarEngine движок одного канала для отложенного варианта.
// Все методы, кроме Level, вызываются только между SetupCaches и DestroyCaches.
type StarEngine interface {
	SetupCaches(center vec.Vec3) error
	DestroyCaches()
	Level(pos vec.Vec3) light.Level
	SetLevel(pos vec.Vec3, level light.Level) error
	AppendIncrease(pos vec.Vec3, level light.Level)
	PerformIncrease() error
	UpdateVisible() error
}

// StarInterface точка входа отложенного варианта.
type StarInterface interface {
	Engine(ch light.Channel) (StarEngine, bool)
	HasSection(ch light.Channel, pos vec.SectionPos) bool
	HasWork() bool
	// BlockChange ставит немедленную перепроверку блока в обход пакетов
	BlockChange(pos vec.Vec3)
	Queue() TaskQueue
}

// WorldView то, что координатору нужно знать о мире.
type WorldView interface {
	Name() string
	SectionRange() chunks.SectionRange
	IsChunkLoaded(chunkX, chunkZ int) bool
	Level(pos vec.Vec3, ch light.Channel) light.Level
}

// Binding набор дескрипторов, полученный один раз при привязке мира.
// Для Direct заполнен Direct, для Queued заполнен Star.
type Binding struct {
	Variant  Variant
	Direct   DirectEngine
	Star     StarInterface
	Channels light.Channel
}

// Supports сообщает, обслуживает ли привязка канал
func (b Binding) Supports(ch light.Channel) bool {
	if b.Channels == light.NoChannels {
		return ch != light.NoChannels
	}
	return b.Channels&ch == ch && ch != light.NoChannels
}

// Binder разрешает привязку мира к хосту
type Binder interface {
	Bind(w WorldView) (Binding, error)
}

// BinderFunc адаптер функции к Binder
type BinderFunc func(w WorldView) (Binding, error)

func (f BinderFunc) Bind(w WorldView) (Binding, error) { return f(w) }
