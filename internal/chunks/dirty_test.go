package chunks

import (
	"testing"

	"github.com/annel0/lightsync/internal/light"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overworld = SectionRange{Bottom: -5, Top: 20}

func TestMarkSectionOutOfRangeIsNoop(t *testing.T) {
	r := NewDirtyRegion("world", 0, 0, overworld)

	assert.NotPanics(t, func() {
		r.MarkSectionForUpdate(light.AllChannels, -6)
		r.MarkSectionForUpdate(light.AllChannels, 21)
		r.MarkSectionForUpdate(light.AllChannels, 1000)
	})
	assert.True(t, r.Empty())
	assert.Equal(t, uint(0), r.SkyBits().Count())
	assert.Equal(t, uint(0), r.BlockBits().Count())
}

func TestMarkSectionChannelsIndependent(t *testing.T) {
	r := NewDirtyRegion("world", 3, -2, overworld)
	r.MarkSectionForUpdate(light.Block, -5)
	r.MarkSectionForUpdate(light.Sky, 20)

	assert.True(t, r.IsDirty(light.Block, -5))
	assert.False(t, r.IsDirty(light.Sky, -5))
	assert.True(t, r.IsDirty(light.Sky, 20))
	assert.False(t, r.IsDirty(light.Block, 20))

	// бит 0 соответствует нижней секции
	assert.True(t, r.BlockBits().Test(0))
	assert.True(t, r.SkyBits().Test(25))

	s := r.Summary()
	assert.Equal(t, []int{-5}, s.BlockSections)
	assert.Equal(t, []int{20}, s.SkySections)
}

func TestClearAndFullColumn(t *testing.T) {
	r := NewDirtyRegion("world", 0, 0, overworld)
	r.SetFullColumn()

	for y := overworld.Bottom; y <= overworld.Top; y++ {
		assert.True(t, r.IsDirty(light.Sky, y), "sky %d", y)
		assert.True(t, r.IsDirty(light.Block, y), "block %d", y)
	}
	assert.Equal(t, uint(overworld.Len()), r.SkyBits().Count())

	r.Clear()
	assert.True(t, r.Empty())
}

func TestMergeAndSummaryRoundTrip(t *testing.T) {
	a := NewDirtyRegion("world", 1, 1, overworld)
	b := NewDirtyRegion("world", 1, 1, overworld)
	a.MarkSectionForUpdate(light.Block, 4)
	b.MarkSectionForUpdate(light.Sky, 5)
	b.MarkSectionForUpdate(light.Block, 3)

	require.NoError(t, a.Merge(b))
	assert.Equal(t, []int{3, 4}, a.Summary().BlockSections)
	assert.Equal(t, []int{5}, a.Summary().SkySections)

	other := NewDirtyRegion("world", 2, 1, overworld)
	assert.Error(t, a.Merge(other))

	restored := FromSummary(a.Summary(), overworld)
	assert.Equal(t, a.Summary(), restored.Summary())
}

func TestRegionSetDeduplicates(t *testing.T) {
	set := NewRegionSet("world", overworld)
	r1 := set.Region(0, 0)
	r2 := set.Region(0, 0)
	set.Region(1, 0)

	assert.Same(t, r1, r2)
	assert.Equal(t, 2, set.Len())

	set.Reset()
	assert.Equal(t, 0, set.Len())
}
