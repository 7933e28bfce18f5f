package world

import (
	"sync"

	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

// nibbles 4096 значений по 4 бита, одна секция одного канала
type nibbles [2048]byte

// nibbleIndex порядок y, z, x внутри секции
func nibbleIndex(p vec.Vec3) int {
	l := p.Local()
	return l.Y<<8 | l.Z<<4 | l.X
}

func (n *nibbles) get(i int) light.Level {
	b := n[i>>1]
	if i&1 == 0 {
		return light.Level(b & 0x0F)
	}
	return light.Level(b >> 4)
}

func (n *nibbles) set(i int, v light.Level) {
	j := i >> 1
	if i&1 == 0 {
		n[j] = n[j]&0xF0 | byte(v)
	} else {
		n[j] = n[j]&0x0F | byte(v)<<4
	}
}

type sectionKey struct {
	ch  light.Channel
	pos vec.SectionPos
}

// LightStore хранит уровни света по секциям для каждого канала.
// Отсутствующая секция читается как 0.
type LightStore struct {
	mu       sync.RWMutex
	sections map[sectionKey]*nibbles
}

// NewLightStore создаёт пустое хранилище
func NewLightStore() *LightStore {
	return &LightStore{sections: make(map[sectionKey]*nibbles)}
}

// Get читает уровень одного канала
func (s *LightStore) Get(pos vec.Vec3, ch light.Channel) light.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.sections[sectionKey{ch, pos.Section()}]
	if !ok {
		return 0
	}
	return n.get(nibbleIndex(pos))
}

// Set пишет уровень; возвращает ErrSectionMissing, если секция не выделена.
func (s *LightStore) Set(pos vec.Vec3, ch light.Channel, level light.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.sections[sectionKey{ch, pos.Section()}]
	if !ok {
		return light.ErrSectionMissing
	}
	n.set(nibbleIndex(pos), light.Clamp(int(level)))
	return nil
}

// HasSection проверяет, выделена ли секция канала
func (s *LightStore) HasSection(ch light.Channel, pos vec.SectionPos) bool {
	s.mu.RLock()
	_, ok := s.sections[sectionKey{ch, pos}]
	s.mu.RUnlock()
	return ok
}

// EnsureSection выделяет секцию, если её нет
func (s *LightStore) EnsureSection(ch light.Channel, pos vec.SectionPos) {
	s.mu.Lock()
	if _, ok := s.sections[sectionKey{ch, pos}]; !ok {
		s.sections[sectionKey{ch, pos}] = new(nibbles)
	}
	s.mu.Unlock()
}

// DropSection удаляет секцию (выгрузка колонны)
func (s *LightStore) DropSection(ch light.Channel, pos vec.SectionPos) {
	s.mu.Lock()
	delete(s.sections, sectionKey{ch, pos})
	s.mu.Unlock()
}

// copySection возвращает копию секции или false
func (s *LightStore) copySection(ch light.Channel, pos vec.SectionPos) (nibbles, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.sections[sectionKey{ch, pos}]
	if !ok {
		return nibbles{}, false
	}
	return *n, true
}

// putSection перезаписывает секцию целиком
func (s *LightStore) putSection(ch light.Channel, pos vec.SectionPos, data nibbles) {
	s.mu.Lock()
	n, ok := s.sections[sectionKey{ch, pos}]
	if !ok {
		n = new(nibbles)
		s.sections[sectionKey{ch, pos}] = n
	}
	*n = data
	s.mu.Unlock()
}

// Sections количество выделенных секций
func (s *LightStore) Sections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sections)
}
