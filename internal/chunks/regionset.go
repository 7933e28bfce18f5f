package chunks

// RegionSet набор регионов одного прохода сбора. Поиск идёт до вставки,
// поэтому на один ключ приходится ровно одна запись.
type RegionSet struct {
	world string
	rng   SectionRange
	index map[Key]*DirtyRegion
	order []*DirtyRegion
}

// NewRegionSet создаёт пустой набор для мира
func NewRegionSet(world string, rng SectionRange) *RegionSet {
	return &RegionSet{
		world: world,
		rng:   rng,
		index: make(map[Key]*DirtyRegion),
	}
}

func (s *RegionSet) World() string       { return s.world }
func (s *RegionSet) Range() SectionRange { return s.rng }

// Region возвращает регион колонны, создавая его при первом обращении
func (s *RegionSet) Region(chunkX, chunkZ int) *DirtyRegion {
	key := Key{World: s.world, X: chunkX, Z: chunkZ}
	if r, ok := s.index[key]; ok {
		return r
	}
	r := NewDirtyRegion(s.world, chunkX, chunkZ, s.rng)
	s.index[key] = r
	s.order = append(s.order, r)
	return r
}

// Lookup возвращает регион без создания
func (s *RegionSet) Lookup(chunkX, chunkZ int) (*DirtyRegion, bool) {
	r, ok := s.index[Key{World: s.world, X: chunkX, Z: chunkZ}]
	return r, ok
}

// Regions регионы в порядке первого обращения
func (s *RegionSet) Regions() []*DirtyRegion {
	out := make([]*DirtyRegion, len(s.order))
	copy(out, s.order)
	return out
}

func (s *RegionSet) Len() int { return len(s.order) }

// Summaries сводка по всем регионам
func (s *RegionSet) Summaries() []Summary {
	out := make([]Summary, 0, len(s.order))
	for _, r := range s.order {
		out = append(out, r.Summary())
	}
	return out
}

// Reset очищает набор после того, как вызывающий отправил/пересчитал регионы
func (s *RegionSet) Reset() {
	s.index = make(map[Key]*DirtyRegion)
	s.order = nil
}
