package chunks

import (
	"testing"

	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectLevelZeroMarksOriginOnce(t *testing.T) {
	for _, ch := range []light.Channel{light.Block, light.Sky, light.AllChannels} {
		set := NewRegionSet("world", overworld)
		pos := vec.Vec3{X: 37, Y: 70, Z: -3}

		entries := Collect(set, pos, 0, ch, nil)

		require.Len(t, entries, 1, "channel %s", ch)
		assert.Equal(t, SectionEntry{ChunkX: 2, ChunkZ: -1, SectionY: 4, Channels: ch}, entries[0])
		require.Equal(t, 1, set.Len())
		assert.True(t, set.Regions()[0].IsDirty(ch, 4))
	}
}

func TestCollectNegativeLevelIsClampedToZero(t *testing.T) {
	set := NewRegionSet("world", overworld)
	entries := Collect(set, vec.Vec3{X: 8, Y: 8, Z: 8}, -4, light.Block, nil)
	assert.Len(t, entries, 1)
}

func TestCollectBoundaryAtChunkEdge(t *testing.T) {
	set := NewRegionSet("world", overworld)
	Collect(set, vec.Vec3{X: 0, Y: 64, Z: 0}, 12, light.Block, nil)

	origin, ok := set.Lookup(0, 0)
	require.True(t, ok)
	assert.True(t, origin.IsDirty(light.Block, 4))
	assert.False(t, origin.IsDirty(light.Sky, 4))

	// delta(0,+1) = 16 > 12
	_, ok = set.Lookup(1, 0)
	assert.False(t, ok, "chunk (1,0) must not be touched")

	// delta(0,-1) = 1
	west, ok := set.Lookup(-1, 0)
	require.True(t, ok)
	assert.True(t, west.IsDirty(light.Block, 4))
}

func TestCollectNeverExceedsFalloff(t *testing.T) {
	positions := []vec.Vec3{
		{X: 0, Y: 64, Z: 0}, {X: 15, Y: 15, Z: 15}, {X: 7, Y: 8, Z: 9},
		{X: -1, Y: -1, Z: -1}, {X: 33, Y: 200, Z: -47},
	}
	for _, pos := range positions {
		for level := 1; level <= 15; level++ {
			set := NewRegionSet("world", overworld)
			Collect(set, pos, level, light.Block, nil)
			local := pos.Local()

			for _, r := range set.Regions() {
				dX := r.ChunkX() - pos.ChunkX()
				dZ := r.ChunkZ() - pos.ChunkZ()
				for _, y := range r.Summary().BlockSections {
					dY := y - pos.SectionY()
					dist := DistanceToBoundary(local.X, dX) + DistanceToBoundary(local.Z, dZ) + DistanceToBoundary(local.Y, dY)
					assert.Less(t, dist, level, "pos=%v level=%d section=(%d,%d,%d)", pos, level, r.ChunkX(), y, r.ChunkZ())
				}
			}
		}
	}
}

func TestCollectFromSectionCenterSkipsDiagonals(t *testing.T) {
	set := NewRegionSet("world", overworld)
	// центр секции: до любой границы не меньше 8 шагов, диагонали недостижимы
	entries := Collect(set, vec.Vec3{X: 8, Y: 72, Z: 8}, 15, light.Sky, nil)

	assert.Len(t, set.Regions(), 5)
	for _, e := range entries {
		assert.True(t, e.ChunkX == 0 || e.ChunkZ == 0)
	}
}

func TestCollectRespectsValidityInterval(t *testing.T) {
	set := NewRegionSet("world", SectionRange{Bottom: 0, Top: 15})
	Collect(set, vec.Vec3{X: 4, Y: 0, Z: 4}, 15, light.Block, nil)

	for _, r := range set.Regions() {
		for _, y := range r.Summary().BlockSections {
			assert.GreaterOrEqual(t, y, 0)
		}
	}
}

func TestCollectDeduplicatesAcrossCalls(t *testing.T) {
	set := NewRegionSet("world", overworld)
	Collect(set, vec.Vec3{X: 1, Y: 64, Z: 1}, 15, light.Block, nil)
	Collect(set, vec.Vec3{X: 2, Y: 64, Z: 2}, 15, light.Sky, nil)

	seen := make(map[Key]bool)
	for _, r := range set.Regions() {
		assert.False(t, seen[r.Key()], "duplicate region %s", r.Key())
		seen[r.Key()] = true
	}
	origin, _ := set.Lookup(0, 0)
	assert.True(t, origin.IsDirty(light.Block, 4))
	assert.True(t, origin.IsDirty(light.Sky, 4))
}

func TestCollectSkipsUnloadedChunks(t *testing.T) {
	set := NewRegionSet("world", overworld)
	onlyOrigin := func(x, z int) bool { return x == 0 && z == 0 }

	Collect(set, vec.Vec3{X: 0, Y: 64, Z: 0}, 15, light.Block, onlyOrigin)

	require.Equal(t, 1, set.Len())
	_, ok := set.Lookup(0, 0)
	assert.True(t, ok)
}
