package chunks

import (
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

// ChunkFilter сообщает, загружена ли колонна. nil означает "все загружены".
type ChunkFilter func(chunkX, chunkZ int) bool

// SectionEntry одна секция, на которую может повлиять изменение света
type SectionEntry struct {
	ChunkX   int
	ChunkZ   int
	SectionY int
	Channels light.Channel
}

// Collect определяет секции, куда может дотянуться свет уровня level,
// поставленный в pos, и помечает их в наборе.
//
// Свет убывает минимум на 1 за блок, поэтому соседняя секция по оси
// затрагивается, только если суммарное расстояние до неё меньше уровня.
// Перебираются 27 комбинаций (dX, dZ, dY), ветка отсекается, как только
// остаток стал <= 0. Уровень 0 всё равно помечает исходную секцию.
func Collect(set *RegionSet, pos vec.Vec3, level int, ch light.Channel, loaded ChunkFilter) []SectionEntry {
	lvl := int(light.Clamp(level))
	local := pos.Local()
	baseX, baseZ, baseY := pos.ChunkX(), pos.ChunkZ(), pos.SectionY()
	rng := set.Range()

	var entries []SectionEntry
	mark := func(chunkX, chunkZ, sectionY int) {
		if !rng.Contains(sectionY) {
			return
		}
		if loaded != nil && !loaded(chunkX, chunkZ) {
			return
		}
		set.Region(chunkX, chunkZ).MarkSectionForUpdate(ch, sectionY)
		entries = append(entries, SectionEntry{ChunkX: chunkX, ChunkZ: chunkZ, SectionY: sectionY, Channels: ch})
	}

	if lvl == 0 {
		mark(baseX, baseZ, baseY)
		return entries
	}

	for dX := -1; dX <= 1; dX++ {
		remX := lvl - DeltaLight(local.X, dX)
		if remX <= 0 {
			continue
		}
		for dZ := -1; dZ <= 1; dZ++ {
			remZ := remX - DeltaLight(local.Z, dZ)
			if remZ <= 0 {
				continue
			}
			for dY := -1; dY <= 1; dY++ {
				if remZ-DeltaLight(local.Y, dY) <= 0 {
					continue
				}
				mark(baseX+dX, baseZ+dZ, baseY+dY)
			}
		}
	}
	return entries
}
