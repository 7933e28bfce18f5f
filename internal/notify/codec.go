package notify

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/klauspost/compress/zstd"
)

// Codec кодирует пакет сводок колонн в полезную нагрузку события.
type Codec interface {
	Name() string
	Encode(batch []chunks.Summary) ([]byte, error)
	Decode(payload []byte) ([]chunks.Summary, error)
}

type jsonCodec struct{}

// NewJSONCodec пакет как JSON-массив без сжатия
func NewJSONCodec() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(batch []chunks.Summary) ([]byte, error) {
	return json.Marshal(batch)
}

func (jsonCodec) Decode(payload []byte) ([]chunks.Summary, error) {
	var out []chunks.Summary
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode light batch: %w", err)
	}
	return out, nil
}

// ZstdCodec JSON поверх zstd. Безопасен для параллельного использования.
type ZstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCodec создаёт кодек с самым быстрым уровнем сжатия
func NewZstdCodec() (*ZstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &ZstdCodec{enc: enc, dec: dec}, nil
}

func (c *ZstdCodec) Name() string { return "zstd" }

func (c *ZstdCodec) Encode(batch []chunks.Summary) ([]byte, error) {
	raw, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (c *ZstdCodec) Decode(payload []byte) ([]chunks.Summary, error) {
	raw, err := c.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return jsonCodec{}.Decode(raw)
}

// Close освобождает ресурсы декодера
func (c *ZstdCodec) Close() {
	_ = c.enc.Close()
	c.dec.Close()
}
