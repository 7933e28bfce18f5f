package lightapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/critical"
	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/storage"
	"github.com/annel0/lightsync/internal/vec"
	"github.com/annel0/lightsync/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var overworldRange = chunks.SectionRange{Bottom: -4, Top: 19}

type fixture struct {
	host   *world.Host
	w      *world.World
	facade *Facade
	api    *API
}

func newFixture(t *testing.T, variant engine.Variant, opts Options, channels light.Channel) *fixture {
	t.Helper()
	host := world.NewHost()
	w := world.NewWorld(world.Options{Name: "overworld", Range: overworldRange, Variant: variant, Channels: channels})
	w.LoadArea(1)
	host.Add(w)
	t.Cleanup(host.Close)

	opts.Binder = host
	f := New(opts)
	require.NoError(t, f.BindWorld(w))
	return &fixture{host: host, w: w, facade: f, api: NewAPI(f)}
}

type recordingResender struct {
	mu      sync.Mutex
	regions []*chunks.DirtyRegion
}

func (r *recordingResender) Add(regions ...*chunks.DirtyRegion) {
	r.mu.Lock()
	r.regions = append(r.regions, regions...)
	r.mu.Unlock()
}

var origin = vec.Vec3{X: 0, Y: 64, Z: 0}

func TestDirectSetAndRecalculate(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	ctx := context.Background()

	code, err := fx.facade.SetLevel(ctx, "overworld", origin, 15, light.Block)
	require.NoError(t, err)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, light.Level(15), fx.facade.GetLevel(ctx, "overworld", origin, light.Block))

	code, err = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	require.NoError(t, err)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, light.Level(13), fx.facade.GetLevel(ctx, "overworld", vec.Vec3{X: 2, Y: 64, Z: 0}, light.Block))
	assert.Equal(t, light.Level(0), fx.facade.GetLevel(ctx, "overworld", vec.Vec3{X: 2, Y: 64, Z: 0}, light.Sky))

	code, _ = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	assert.Equal(t, light.NoChangesToRecalculate, code)
	code, _ = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	assert.Equal(t, light.NoChangesToRecalculate, code)
	assert.Zero(t, fx.w.DirectEngine().Violations())
}

func TestDirectBothChannelsSplitBudget(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{UpdateBudget: 10}, light.NoChannels)
	ctx := context.Background()

	_, err := fx.facade.SetLevel(ctx, "overworld", origin, 15, light.AllChannels)
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		code, err := fx.facade.Recalculate(ctx, "overworld", origin, light.AllChannels)
		require.NoError(t, err)
		if code == light.NoChangesToRecalculate {
			break
		}
	}
	far := vec.Vec3{X: 0, Y: 64, Z: 5}
	assert.Equal(t, light.Level(10), fx.facade.GetLevel(ctx, "overworld", far, light.Block))
	assert.Equal(t, light.Level(10), fx.facade.GetLevel(ctx, "overworld", far, light.Sky))
}

func TestPreconditions(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	ctx := context.Background()

	code, err := fx.facade.SetLevel(ctx, "overworld", vec.Vec3{X: 500, Y: 64, Z: 0}, 10, light.Block)
	assert.NoError(t, err)
	assert.Equal(t, light.ChunkNotLoaded, code)

	code, _ = fx.facade.Recalculate(ctx, "overworld", vec.Vec3{X: 500, Y: 64, Z: 0}, light.Block)
	assert.Equal(t, light.ChunkNotLoaded, code)

	code, _ = fx.facade.SetLevel(ctx, "nether", origin, 10, light.Block)
	assert.Equal(t, light.WorldUnavailable, code)
	assert.Equal(t, light.LevelUnknown, fx.facade.GetLevel(ctx, "nether", origin, light.Block))
	assert.Equal(t, light.LevelUnknown, fx.facade.GetLevel(ctx, "overworld", origin, light.NoChannels))
}

func TestCombinedReadIsMax(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	ctx := context.Background()
	_, err := fx.facade.SetLevel(ctx, "overworld", origin, 5, light.Sky)
	require.NoError(t, err)
	_, err = fx.facade.SetLevel(ctx, "overworld", origin, 12, light.Block)
	require.NoError(t, err)

	assert.Equal(t, light.Level(12), fx.facade.GetLevel(ctx, "overworld", origin, light.AllChannels))
	assert.Equal(t, 5, fx.api.GetRawLightLevel("overworld", 0, 64, 0, light.Sky))
}

func TestDirectWritesDoNotOverlapWorkerLoop(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	ctx := context.Background()
	eng := fx.w.DirectEngine()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				eng.Tick(64)
				pos := vec.Vec3{X: g*4 - 8, Y: 64, Z: i % 16}
				code, err := fx.facade.SetLevel(ctx, "overworld", pos, 14, light.Block)
				assert.NoError(t, err)
				assert.Equal(t, light.Success, code)
			}
		}(g)
	}
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, fx.w.Mailbox().Flush(flushCtx))
	assert.Zero(t, eng.Violations())
}

func TestClosingWorkerSurfacesSyncUnavailable(t *testing.T) {
	syncer := critical.New(critical.Config{ClosingGrace: 20 * time.Millisecond, ClosingPoll: 5 * time.Millisecond}, nil)
	fx := newFixture(t, engine.Direct, Options{Sync: syncer}, light.NoChannels)

	state := fx.w.Mailbox().State()
	require.True(t, state.CompareAndSwap(0, engine.FlagClosing|engine.FlagBusy))
	defer state.CompareAndSwap(engine.FlagClosing|engine.FlagBusy, engine.FlagClosing)

	code, err := fx.facade.SetLevel(context.Background(), "overworld", origin, 9, light.Block)
	assert.ErrorIs(t, err, light.ErrSyncUnavailable)
	assert.Equal(t, light.Failed, code)

	assert.Equal(t, light.Failed, fx.api.SetRawLightLevel("overworld", 0, 64, 0, 9, light.Block))
}

func TestMissingSectionIsNothingToUpdate(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	fx.w.DropSection(light.Block, origin.Section())

	code, err := fx.facade.SetLevel(context.Background(), "overworld", origin, 9, light.Block)
	require.NoError(t, err)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, light.Level(0), fx.facade.GetLevel(context.Background(), "overworld", origin, light.Block))
}

func TestUnsupportedChannels(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{}, light.Block)
	ctx := context.Background()

	assert.True(t, fx.facade.IsLightingSupported("overworld", light.Block))
	assert.False(t, fx.facade.IsLightingSupported("overworld", light.Sky))
	assert.False(t, fx.api.IsLightingSupported("nether", light.Block))

	code, _ := fx.facade.SetLevel(ctx, "overworld", origin, 9, light.Sky)
	assert.Equal(t, light.NotImplemented, code)

	// небесная часть маски пропускается
	code, _ = fx.facade.SetLevel(ctx, "overworld", origin, 9, light.AllChannels)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, light.Level(9), fx.facade.GetLevel(ctx, "overworld", origin, light.Block))
}

func TestBindingFailureLeavesWorldUnavailable(t *testing.T) {
	f := New(Options{Binder: world.NewHost()})
	stray := world.NewWorld(world.Options{Name: "stray", Range: overworldRange})
	defer stray.Close()

	err := f.BindWorld(stray)
	assert.ErrorIs(t, err, light.ErrBindingFailed)
	assert.Equal(t, []string{"stray"}, f.Worlds())

	code, _ := f.SetLevel(context.Background(), "stray", origin, 3, light.Block)
	assert.Equal(t, light.WorldUnavailable, code)

	f.UnbindWorld("stray")
	assert.Empty(t, f.Worlds())
}

func TestBindingWithoutHandles(t *testing.T) {
	f := New(Options{Binder: engine.BinderFunc(func(engine.WorldView) (engine.Binding, error) {
		return engine.Binding{Variant: engine.Queued}, nil
	})})
	w := world.NewWorld(world.Options{Name: "q", Range: overworldRange, Variant: engine.Queued})
	assert.ErrorIs(t, f.BindWorld(w), light.ErrBindingFailed)
}

func TestQueuedSetRecalculateFlow(t *testing.T) {
	fx := newFixture(t, engine.Queued, Options{}, light.NoChannels)
	ctx := context.Background()
	exec := fx.w.Executor()

	code, err := fx.facade.SetLevel(ctx, "overworld", origin, 12, light.Block)
	require.NoError(t, err)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, light.Level(0), fx.facade.GetLevel(ctx, "overworld", origin, light.Block))

	code, _ = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, 1, exec.PendingAt(engine.PriorityHighest))
	exec.Drain()

	assert.Equal(t, light.Level(12), fx.facade.GetLevel(ctx, "overworld", origin, light.Block))
	assert.Equal(t, light.Level(11), fx.facade.GetLevel(ctx, "overworld", vec.Vec3{X: -1, Y: 64, Z: 0}, light.Block))

	code, _ = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	assert.Equal(t, light.NoChangesToRecalculate, code)
	code, _ = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	assert.Equal(t, light.NoChangesToRecalculate, code)

	// уровень уже не ниже: запись отброшена, работы нет
	code, _ = fx.facade.SetLevel(ctx, "overworld", origin, 10, light.Block)
	assert.Equal(t, light.Failed, code)
}

func TestQueuedRecalculateDrainsOtherChannel(t *testing.T) {
	fx := newFixture(t, engine.Queued, Options{}, light.NoChannels)
	ctx := context.Background()
	exec := fx.w.Executor()

	code, _ := fx.facade.SetLevel(ctx, "overworld", origin, 12, light.Sky)
	require.Equal(t, light.Success, code)

	code, _ = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, 1, exec.PendingAt(engine.PriorityHighest))
	exec.Drain()
	assert.Equal(t, light.Level(12), fx.facade.GetLevel(ctx, "overworld", origin, light.Sky))

	code, _ = fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	assert.Equal(t, light.NoChangesToRecalculate, code)
}

func TestQueuedWriteOutsideSectionsFails(t *testing.T) {
	fx := newFixture(t, engine.Queued, Options{}, light.NoChannels)
	ctx := context.Background()
	high := vec.Vec3{X: 0, Y: 5000, Z: 0}

	code, _ := fx.facade.SetLevel(ctx, "overworld", high, 12, light.Block)
	assert.Equal(t, light.Failed, code)
	assert.Zero(t, fx.w.Executor().Pending())

	code, _ = fx.facade.Recalculate(ctx, "overworld", high, light.Block)
	assert.Equal(t, light.NoChangesToRecalculate, code)
}

func TestQueuedLevelZeroIsImmediateBlockChange(t *testing.T) {
	fx := newFixture(t, engine.Queued, Options{}, light.NoChannels)
	ctx := context.Background()
	exec := fx.w.Executor()

	fx.facade.SetLevel(ctx, "overworld", origin, 12, light.Block)
	fx.facade.Recalculate(ctx, "overworld", origin, light.Block)
	exec.Drain()

	code, _ := fx.facade.SetLevel(ctx, "overworld", origin, 0, light.Block)
	assert.Equal(t, light.Success, code)
	assert.Equal(t, 1, exec.PendingAt(engine.PriorityHigh))
	exec.Drain()
	assert.Equal(t, light.Level(0), fx.facade.GetLevel(ctx, "overworld", origin, light.Block))
}

func TestSendChunkPairing(t *testing.T) {
	rs := &recordingResender{}
	direct := newFixture(t, engine.Direct, Options{Resender: rs}, light.NoChannels)
	regions, code := direct.facade.Collect("overworld", origin, 12, light.Block)
	require.Equal(t, light.Success, code)

	assert.Equal(t, light.Success, direct.facade.SendChunk(context.Background(), "overworld", regions))
	assert.Len(t, rs.regions, len(regions))
	assert.Equal(t, light.WorldUnavailable, direct.facade.SendChunk(context.Background(), "nether", regions))

	bare := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	assert.Equal(t, light.NotImplemented, bare.facade.SendChunk(context.Background(), "overworld", regions))

	queued := newFixture(t, engine.Queued, Options{Resender: rs}, light.NoChannels)
	assert.Equal(t, light.NotImplemented, queued.facade.SendChunk(context.Background(), "overworld", regions))
}

func TestCollectChunkSectionsBoundary(t *testing.T) {
	fx := newFixture(t, engine.Direct, Options{}, light.NoChannels)

	summaries, code := fx.api.CollectChunkSections("overworld", 0, 64, 0, 12, light.Block)
	require.Equal(t, light.Success, code)

	byChunk := make(map[vec.ChunkPos]chunks.Summary)
	for _, s := range summaries {
		byChunk[vec.ChunkPos{X: s.ChunkX, Z: s.ChunkZ}] = s
	}
	require.Contains(t, byChunk, vec.ChunkPos{X: 0, Z: 0})
	assert.Contains(t, byChunk[vec.ChunkPos{X: 0, Z: 0}].BlockSections, 4)
	assert.Empty(t, byChunk[vec.ChunkPos{X: 0, Z: 0}].SkySections)
	assert.NotContains(t, byChunk, vec.ChunkPos{X: 1, Z: 0})
	assert.Contains(t, byChunk, vec.ChunkPos{X: -1, Z: 0})

	_, code = fx.api.CollectChunkSections("nether", 0, 64, 0, 12, light.Block)
	assert.Equal(t, light.WorldUnavailable, code)
}

func TestQueuedCollectSkipsUnloadedChunks(t *testing.T) {
	fx := newFixture(t, engine.Queued, Options{}, light.NoChannels)
	fx.w.UnloadChunk(-1, 0)

	regions, _ := fx.facade.Collect("overworld", origin, 15, light.Block)
	for _, r := range regions {
		assert.False(t, r.ChunkX() == -1 && r.ChunkZ() == 0)
	}

	direct := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	direct.w.UnloadChunk(-1, 0)
	regions, _ = direct.facade.Collect("overworld", origin, 15, light.Block)
	found := false
	for _, r := range regions {
		found = found || (r.ChunkX() == -1 && r.ChunkZ() == 0)
	}
	assert.True(t, found)
}

func TestAPISendChunkRebuildsRegions(t *testing.T) {
	rs := &recordingResender{}
	fx := newFixture(t, engine.Direct, Options{Resender: rs}, light.NoChannels)

	summaries, _ := fx.api.CollectChunkSections("overworld", 0, 64, 0, 3, light.Sky)
	summaries = append(summaries, chunks.Summary{World: "nether", ChunkX: 9, ChunkZ: 9, SkySections: []int{1}})
	assert.Equal(t, light.Success, fx.api.SendChunk("overworld", summaries))

	require.Len(t, rs.regions, len(summaries)-1)
	origins := 0
	for _, r := range rs.regions {
		assert.Equal(t, "overworld", r.World())
		if r.ChunkX() == 0 && r.ChunkZ() == 0 && r.IsDirty(light.Sky, 4) {
			origins++
		}
	}
	assert.Equal(t, 1, origins)
	assert.Equal(t, light.WorldUnavailable, fx.api.SendChunk("nether", summaries))
}

func TestJournalRecordAndReplay(t *testing.T) {
	journal := storage.NewMemoryJournal()
	fx := newFixture(t, engine.Direct, Options{Journal: journal}, light.NoChannels)
	ctx := context.Background()

	fx.facade.SetLevel(ctx, "overworld", origin, 14, light.Block)
	fx.facade.SetLevel(ctx, "overworld", vec.Vec3{X: 3, Y: 70, Z: 3}, 6, light.AllChannels)
	fx.facade.SetLevel(ctx, "overworld", vec.Vec3{X: 3, Y: 70, Z: 3}, 0, light.Sky)
	fx.facade.SetLevel(ctx, "overworld", vec.Vec3{X: 900, Y: 70, Z: 3}, 6, light.Block)

	entries, err := journal.Load(ctx, "overworld")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	fresh := newFixture(t, engine.Direct, Options{}, light.NoChannels)
	applied, err := Replay(ctx, journal, fresh.facade, "overworld")
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, light.Level(14), fresh.facade.GetLevel(ctx, "overworld", origin, light.Block))
	assert.Equal(t, light.Level(13), fresh.facade.GetLevel(ctx, "overworld", vec.Vec3{X: 1, Y: 64, Z: 0}, light.Block))
	assert.Equal(t, light.Level(0), fresh.facade.GetLevel(ctx, "overworld", vec.Vec3{X: 3, Y: 70, Z: 3}, light.Sky))
}

func TestFacadeSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	fx := newFixture(t, engine.Direct, Options{Tracer: tp.Tracer("test")}, light.NoChannels)

	fx.facade.SetLevel(context.Background(), "overworld", origin, 7, light.Block)
	fx.facade.Recalculate(context.Background(), "overworld", origin, light.Block)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "light.SetLevel", spans[0].Name())
	assert.Equal(t, "light.Recalculate", spans[1].Name())
}
