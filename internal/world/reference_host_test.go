package world

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRange = chunks.SectionRange{Bottom: 0, Top: 15}

func TestLightStoreNibbles(t *testing.T) {
	s := NewLightStore()
	sp := vec.SectionPos{X: 0, Y: 4, Z: 0}
	a := vec.Vec3{X: 0, Y: 64, Z: 0}
	b := vec.Vec3{X: 1, Y: 64, Z: 0}

	assert.ErrorIs(t, s.Set(a, light.Block, 5), light.ErrSectionMissing)

	s.EnsureSection(light.Block, sp)
	require.NoError(t, s.Set(a, light.Block, 5))
	require.NoError(t, s.Set(b, light.Block, 12))

	assert.Equal(t, light.Level(5), s.Get(a, light.Block))
	assert.Equal(t, light.Level(12), s.Get(b, light.Block))
	assert.Equal(t, light.Level(0), s.Get(a, light.Sky))

	require.NoError(t, s.Set(a, light.Block, 40))
	assert.Equal(t, light.MaxLevel, s.Get(a, light.Block))
	assert.Equal(t, light.Level(12), s.Get(b, light.Block))
}

func TestMailboxRunsTasksInOrder(t *testing.T) {
	m := NewMailbox("test")
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		m.Tell(func() { got = append(got, i) })
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Flush(ctx))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Zero(t, m.State().Load()&engine.FlagBusy)
}

func TestMailboxHeldBusyPausesLoop(t *testing.T) {
	m := NewMailbox("test")
	state := m.State()
	require.True(t, state.CompareAndSwap(0, engine.FlagBusy))

	var ran atomic.Bool
	m.Tell(func() { ran.Store(true) })
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load(), "loop must not start while Busy is held")

	require.True(t, state.CompareAndSwap(engine.FlagBusy, 0))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load(), "releasing Busy alone does not resume the loop")

	m.Step()
	assert.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestMailboxCloseStopsScheduling(t *testing.T) {
	m := NewMailbox("test")
	m.Close()
	assert.NotZero(t, m.State().Load()&engine.FlagClosing)

	var ran atomic.Bool
	m.Tell(func() { ran.Store(true) })
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.Error(t, m.Flush(ctx))
	assert.False(t, ran.Load())
}

func TestDirectEngineSpreadsLight(t *testing.T) {
	w := NewWorld(Options{Name: "direct", Range: testRange, Variant: engine.Direct})
	defer w.Close()
	w.LoadArea(1)

	layer, ok := w.DirectEngine().Layer(light.Block)
	require.True(t, ok)
	src := vec.Vec3{X: 0, Y: 64, Z: 0}
	require.NoError(t, layer.SetLevel(src, 15))
	assert.True(t, w.DirectEngine().HasWork())

	for w.DirectEngine().HasWork() {
		layer.RunUpdates(1000)
	}
	assert.Equal(t, light.Level(15), w.Level(src, light.Block))
	assert.Equal(t, light.Level(14), w.Level(vec.Vec3{X: -1, Y: 64, Z: 0}, light.Block))
	assert.Equal(t, light.Level(12), w.Level(vec.Vec3{X: 3, Y: 64, Z: 0}, light.Block))
	assert.Equal(t, light.Level(0), w.Level(src, light.Sky))
	assert.Zero(t, w.DirectEngine().Violations())
}

func TestDirectRemoveOnMissingSectionLogs(t *testing.T) {
	var buf bytes.Buffer
	lm := logging.GetLoggerManager()
	prev := logging.GetLightLogger()
	lm.Register("light", logging.NewWriterLogger("light", &buf, logging.DEBUG))
	defer lm.Register("light", prev)

	w := NewWorld(Options{Name: "direct", Range: testRange, Variant: engine.Direct})
	defer w.Close()
	w.LoadChunk(0, 0)

	layer, ok := w.DirectEngine().Layer(light.Block)
	require.True(t, ok)
	assert.NotPanics(t, func() { layer.Remove(vec.Vec3{X: 100, Y: 64, Z: 100}) })
	assert.Contains(t, buf.String(), "[DEBUG] [light] remove")

	buf.Reset()
	layer.Remove(vec.Vec3{X: 1, Y: 64, Z: 1})
	assert.Empty(t, buf.String())
}

func TestPriorityExecutorOrdersByBand(t *testing.T) {
	e := NewPriorityExecutor()
	var order []string
	add := func(name string, p engine.Priority) {
		e.Submit(vec.ChunkPos{}, func() bool { order = append(order, name); return true }, p)
	}
	add("low", engine.PriorityLow)
	add("normal", engine.PriorityNormal)
	add("highest", engine.PriorityHighest)
	e.Submit(vec.ChunkPos{}, func() bool { order = append(order, "failing"); return false }, engine.Priority(42))

	assert.Equal(t, 4, e.Pending())
	assert.Equal(t, 1, e.PendingAt(engine.PriorityLowest))
	assert.Equal(t, 4, e.Drain())
	assert.Equal(t, []string{"highest", "normal", "low", "failing"}, order)

	executed, failed := e.Stats()
	assert.Equal(t, int64(4), executed)
	assert.Equal(t, int64(1), failed)
}

func TestQueuedEngineCachesLifecycle(t *testing.T) {
	w := NewWorld(Options{Name: "queued", Range: testRange, Variant: engine.Queued})
	w.LoadArea(1)
	star, ok := w.QueuedEngine().Engine(light.Block)
	require.True(t, ok)

	src := vec.Vec3{X: 7, Y: 64, Z: 7}
	require.NoError(t, star.SetupCaches(src))
	assert.Error(t, star.SetupCaches(src))

	require.NoError(t, star.SetLevel(src, 10))
	star.AppendIncrease(src, 10)
	require.NoError(t, star.PerformIncrease())

	// до публикации читатели видят старый снимок
	assert.Equal(t, light.Level(0), w.Level(src, light.Block))
	require.NoError(t, star.UpdateVisible())
	star.DestroyCaches()

	assert.Equal(t, light.Level(10), w.Level(src, light.Block))
	assert.Equal(t, light.Level(9), w.Level(vec.Vec3{X: 8, Y: 64, Z: 7}, light.Block))
	assert.Equal(t, light.Level(10), star.Level(src))

	require.NoError(t, star.SetupCaches(src))
	star.DestroyCaches()
}

func TestQueuedEngineMissingSection(t *testing.T) {
	w := NewWorld(Options{Name: "queued", Range: testRange, Variant: engine.Queued})
	w.LoadChunk(0, 0)
	star, _ := w.QueuedEngine().Engine(light.Sky)

	require.NoError(t, star.SetupCaches(vec.Vec3{X: 7, Y: 64, Z: 7}))
	defer star.DestroyCaches()
	err := star.SetLevel(vec.Vec3{X: 40, Y: 64, Z: 40}, 3)
	assert.True(t, errors.Is(err, light.ErrSectionMissing))
}

func TestQueuedBlockChange(t *testing.T) {
	w := NewWorld(Options{Name: "queued", Range: testRange, Variant: engine.Queued})
	w.LoadChunk(0, 0)
	pos := vec.Vec3{X: 1, Y: 1, Z: 1}
	require.NoError(t, w.visible.Set(pos, light.Block, 9))

	q := w.QueuedEngine()
	q.BlockChange(pos)
	assert.True(t, q.HasWork())
	assert.Equal(t, 1, w.Executor().PendingAt(engine.PriorityHigh))

	w.Executor().Drain()
	assert.False(t, q.HasWork())
	assert.Equal(t, light.Level(0), w.Level(pos, light.Block))
}

func TestHostBind(t *testing.T) {
	h := NewHost()
	direct := NewWorld(Options{Name: "overworld", Range: testRange})
	defer direct.Close()
	queued := NewWorld(Options{Name: "nether", Range: testRange, Variant: engine.Queued, Channels: light.Block})
	h.Add(direct)
	h.Add(queued)

	b, err := h.Bind(direct)
	require.NoError(t, err)
	assert.Equal(t, engine.Direct, b.Variant)
	assert.NotNil(t, b.Direct)
	assert.Nil(t, b.Star)

	b, err = h.Bind(queued)
	require.NoError(t, err)
	assert.Equal(t, engine.Queued, b.Variant)
	assert.False(t, b.Supports(light.Sky))

	_, err = h.Bind(NewWorld(Options{Name: "end", Range: testRange}))
	assert.ErrorIs(t, err, light.ErrBindingFailed)
}

func TestWorldLevelCombinesChannels(t *testing.T) {
	w := NewWorld(Options{Name: "w", Range: testRange})
	defer w.Close()
	w.LoadChunk(0, 0)
	pos := vec.Vec3{X: 2, Y: 2, Z: 2}
	require.NoError(t, w.store.Set(pos, light.Sky, 4))
	require.NoError(t, w.store.Set(pos, light.Block, 11))

	assert.Equal(t, light.Level(11), w.Level(pos, light.AllChannels))
	assert.Equal(t, light.Level(4), w.Level(pos, light.Sky))
	assert.Equal(t, light.LevelUnknown, w.Level(pos, light.NoChannels))
	assert.True(t, w.IsChunkLoaded(0, 0))

	w.UnloadChunk(0, 0)
	assert.False(t, w.IsChunkLoaded(0, 0))
	assert.Equal(t, light.Level(0), w.Level(pos, light.Block))
}
