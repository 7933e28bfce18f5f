package vec

import "fmt"

// ChunkPos координаты колонны чанка (chunkX, chunkZ)
type ChunkPos struct {
	X, Z int
}

// Offset возвращает соседнюю колонну
func (c ChunkPos) Offset(dx, dz int) ChunkPos {
	return ChunkPos{X: c.X + dx, Z: c.Z + dz}
}

// Center возвращает центральный блок колонны на высоте y
func (c ChunkPos) Center(y int) Vec3 {
	return Vec3{X: c.X<<4 + 7, Y: y, Z: c.Z<<4 + 7}
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("chunk(%d,%d)", c.X, c.Z)
}

// SectionPos координаты секции 16x16x16
type SectionPos struct {
	X, Y, Z int
}

// Chunk возвращает колонну, которой принадлежит секция
func (s SectionPos) Chunk() ChunkPos {
	return ChunkPos{X: s.X, Z: s.Z}
}
