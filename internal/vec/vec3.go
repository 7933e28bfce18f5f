package vec

import "fmt"

// Vec3 абсолютные координаты блока в мире
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// ChunkX деление на 16 с округлением вниз (работает и для отрицательных)
func (v Vec3) ChunkX() int { return v.X >> 4 }

// ChunkZ аналогично ChunkX
func (v Vec3) ChunkZ() int { return v.Z >> 4 }

// SectionY индекс вертикальной секции
func (v Vec3) SectionY() int { return v.Y >> 4 }

// Chunk возвращает координаты колонны чанка
func (v Vec3) Chunk() ChunkPos {
	return ChunkPos{X: v.X >> 4, Z: v.Z >> 4}
}

// Section возвращает координаты секции
func (v Vec3) Section() SectionPos {
	return SectionPos{X: v.X >> 4, Y: v.Y >> 4, Z: v.Z >> 4}
}

// Local возвращает координаты внутри секции, каждая в [0,15]
func (v Vec3) Local() Vec3 {
	return Vec3{X: v.X & 15, Y: v.Y & 15, Z: v.Z & 15}
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Neighbors возвращает шесть соседей по граням
func (v Vec3) Neighbors() [6]Vec3 {
	return [6]Vec3{
		{v.X - 1, v.Y, v.Z}, {v.X + 1, v.Y, v.Z},
		{v.X, v.Y - 1, v.Z}, {v.X, v.Y + 1, v.Z},
		{v.X, v.Y, v.Z - 1}, {v.X, v.Y, v.Z + 1},
	}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
