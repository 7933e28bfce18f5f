package chunks

// DeltaLight минимальное число шагов от локальной координаты источника (0..15)
// до соседней секции в направлении direction ∈ {-1, 0, 1}.
// Для 0 это 0, для -1 это local+1, для +1 это 16-local.
func DeltaLight(local, direction int) int {
	return ((local ^ ((-direction >> 4) & 15)) + 1) & (-(direction & 1))
}

// DistanceToBoundary та же величина в явной форме
func DistanceToBoundary(local, direction int) int {
	switch {
	case direction < 0:
		return local + 1
	case direction > 0:
		return 16 - local
	default:
		return 0
	}
}
