package light

import "strings"

// Level уровень освещённости блока, допустимый диапазон [0,15]
type Level int

const (
	MinLevel Level = 0
	MaxLevel Level = 15

	// LevelUnknown возвращается при чтении, если канал не указан или мир недоступен
	LevelUnknown Level = -1
)

// Clamp приводит произвольное значение к допустимому диапазону.
func Clamp(v int) Level {
	if v < int(MinLevel) {
		return MinLevel
	}
	if v > int(MaxLevel) {
		return MaxLevel
	}
	return Level(v)
}

// Channel битовая маска каналов освещения
type Channel uint8

const (
	Block Channel = 1 << iota // свет от источников
	Sky                       // небесный свет

	NoChannels  Channel = 0
	AllChannels         = Block | Sky
)

// Has проверяет, что все биты other присутствуют в маске
func (c Channel) Has(other Channel) bool {
	return other != 0 && c&other == other
}

// Each перечисляет одиночные каналы маски в порядке Block, Sky
func (c Channel) Each() []Channel {
	out := make([]Channel, 0, 2)
	if c.Has(Block) {
		out = append(out, Block)
	}
	if c.Has(Sky) {
		out = append(out, Sky)
	}
	return out
}

func (c Channel) String() string {
	switch c & AllChannels {
	case Block:
		return "block"
	case Sky:
		return "sky"
	case AllChannels:
		return "sky|block"
	default:
		return "none"
	}
}

// ParseChannel разбирает имя канала: block, sky, all или sky|block.
func ParseChannel(s string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return Block, true
	case "sky":
		return Sky, true
	case "all", "sky|block", "block|sky":
		return AllChannels, true
	default:
		return NoChannels, false
	}
}
