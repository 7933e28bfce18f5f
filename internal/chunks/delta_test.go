package chunks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltaLightSameSectionIsZero(t *testing.T) {
	for local := 0; local < 16; local++ {
		assert.Equal(t, 0, DeltaLight(local, 0), "local=%d", local)
	}
}

func TestDeltaLightMatchesConditionalForm(t *testing.T) {
	for local := 0; local < 16; local++ {
		for _, dir := range []int{-1, 0, 1} {
			assert.Equal(t, DistanceToBoundary(local, dir), DeltaLight(local, dir),
				"local=%d dir=%d", local, dir)
		}
	}
}

func TestDeltaLightBoundaries(t *testing.T) {
	tests := []struct {
		local, dir, want int
	}{
		{0, -1, 1},
		{0, 1, 16},
		{15, -1, 16},
		{15, 1, 1},
		{7, 1, 9},
		{8, -1, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeltaLight(tt.local, tt.dir), "local=%d dir=%d", tt.local, tt.dir)
	}
}
