package chunks

import (
	"fmt"

	"github.com/annel0/lightsync/internal/light"
	"github.com/bits-and-blooms/bitset"
)

// SectionRange допустимый интервал вертикальных секций мира [Bottom, Top].
// Запрашивается у движка один раз и дальше не меняется.
type SectionRange struct {
	Bottom int `json:"bottom"`
	Top    int `json:"top"`
}

// Contains проверяет, что секция лежит в интервале
func (r SectionRange) Contains(sectionY int) bool {
	return sectionY >= r.Bottom && sectionY <= r.Top
}

// Len количество секций в интервале
func (r SectionRange) Len() int {
	if r.Top < r.Bottom {
		return 0
	}
	return r.Top - r.Bottom + 1
}

// Key идентичность региона: (мир, chunkX, chunkZ)
type Key struct {
	World string
	X, Z  int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.World, k.X, k.Z)
}

// DirtyRegion хранит, какие секции колонны требуют пересчёта или пересылки,
// отдельно для неба и для блочного света. Бит i соответствует секции Bottom+i.
//
// Регион принадлежит одному вызывающему на время одной логической операции
// и не защищён мьютексом.
type DirtyRegion struct {
	key   Key
	rng   SectionRange
	sky   *bitset.BitSet
	block *bitset.BitSet
}

// NewDirtyRegion создаёт пустой регион для колонны
func NewDirtyRegion(world string, chunkX, chunkZ int, rng SectionRange) *DirtyRegion {
	n := uint(rng.Len())
	return &DirtyRegion{
		key:   Key{World: world, X: chunkX, Z: chunkZ},
		rng:   rng,
		sky:   bitset.New(n),
		block: bitset.New(n),
	}
}

func (d *DirtyRegion) Key() Key                  { return d.key }
func (d *DirtyRegion) World() string             { return d.key.World }
func (d *DirtyRegion) ChunkX() int               { return d.key.X }
func (d *DirtyRegion) ChunkZ() int               { return d.key.Z }
func (d *DirtyRegion) Range() SectionRange       { return d.rng }
func (d *DirtyRegion) SkyBits() *bitset.BitSet   { return d.sky.Clone() }
func (d *DirtyRegion) BlockBits() *bitset.BitSet { return d.block.Clone() }

// MarkSectionForUpdate помечает секцию для указанных каналов.
// Секция вне интервала мира молча игнорируется.
func (d *DirtyRegion) MarkSectionForUpdate(ch light.Channel, sectionY int) {
	if !d.rng.Contains(sectionY) {
		return
	}
	i := uint(sectionY - d.rng.Bottom)
	if ch.Has(light.Sky) {
		d.sky.Set(i)
	}
	if ch.Has(light.Block) {
		d.block.Set(i)
	}
}

// IsDirty проверяет бит секции; для маски из двух каналов достаточно любого.
func (d *DirtyRegion) IsDirty(ch light.Channel, sectionY int) bool {
	if !d.rng.Contains(sectionY) {
		return false
	}
	i := uint(sectionY - d.rng.Bottom)
	return (ch.Has(light.Sky) && d.sky.Test(i)) || (ch.Has(light.Block) && d.block.Test(i))
}

// Clear сбрасывает оба набора
func (d *DirtyRegion) Clear() {
	d.sky.ClearAll()
	d.block.ClearAll()
}

// SetFullColumn помечает всю колонну (весь интервал мира) для обоих каналов
func (d *DirtyRegion) SetFullColumn() {
	for y := d.rng.Bottom; y <= d.rng.Top; y++ {
		d.MarkSectionForUpdate(light.AllChannels, y)
	}
}

// Empty true, если ни одна секция не помечена
func (d *DirtyRegion) Empty() bool {
	return d.sky.None() && d.block.None()
}

// Merge объединяет биты другого региона той же колонны.
func (d *DirtyRegion) Merge(other *DirtyRegion) error {
	if other.key != d.key || other.rng != d.rng {
		return fmt.Errorf("chunks: cannot merge region %s into %s", other.key, d.key)
	}
	d.sky.InPlaceUnion(other.sky)
	d.block.InPlaceUnion(other.block)
	return nil
}

// Clone возвращает независимую копию региона
func (d *DirtyRegion) Clone() *DirtyRegion {
	return &DirtyRegion{key: d.key, rng: d.rng, sky: d.sky.Clone(), block: d.block.Clone()}
}

// Summary сериализуемое представление региона
type Summary struct {
	World         string `json:"world"`
	ChunkX        int    `json:"chunk_x"`
	ChunkZ        int    `json:"chunk_z"`
	SkySections   []int  `json:"sky_sections,omitempty"`
	BlockSections []int  `json:"block_sections,omitempty"`
}

// Summary перечисляет помеченные секции в абсолютных индексах
func (d *DirtyRegion) Summary() Summary {
	return Summary{
		World:         d.key.World,
		ChunkX:        d.key.X,
		ChunkZ:        d.key.Z,
		SkySections:   d.sections(d.sky),
		BlockSections: d.sections(d.block),
	}
}

func (d *DirtyRegion) sections(b *bitset.BitSet) []int {
	var out []int
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, d.rng.Bottom+int(i))
	}
	return out
}

// FromSummary восстанавливает регион из Summary
func FromSummary(s Summary, rng SectionRange) *DirtyRegion {
	d := NewDirtyRegion(s.World, s.ChunkX, s.ChunkZ, rng)
	for _, y := range s.SkySections {
		d.MarkSectionForUpdate(light.Sky, y)
	}
	for _, y := range s.BlockSections {
		d.MarkSectionForUpdate(light.Block, y)
	}
	return d
}

func (d *DirtyRegion) String() string {
	s := d.Summary()
	return fmt.Sprintf("DirtyRegion{world=%s, chunk=(%d,%d), sky=%v, block=%v}",
		s.World, s.ChunkX, s.ChunkZ, s.SkySections, s.BlockSections)
}
