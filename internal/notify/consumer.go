package notify

import (
	"context"
	"fmt"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/eventbus"
	"github.com/annel0/lightsync/internal/logging"
)

// Consumer получает LightUpdate и передаёт каждую сводку колонны в apply.
type Consumer struct {
	sub    eventbus.Subscription
	codecs map[string]Codec
	apply  func(ctx context.Context, s chunks.Summary)
	log    *logging.Logger
}

// NewConsumer подписывается на LightUpdate. Кодек события выбирается по
// метаданным "codec" среди переданных; без метаданных используется JSON.
func NewConsumer(ctx context.Context, bus eventbus.EventBus, apply func(ctx context.Context, s chunks.Summary), codecs ...Codec) (*Consumer, error) {
	c := &Consumer{
		codecs: map[string]Codec{"json": NewJSONCodec()},
		apply:  apply,
		log:    logging.GetSyncLogger(),
	}
	for _, codec := range codecs {
		c.codecs[codec.Name()] = codec
	}
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: []string{eventbus.EventLightUpdate}}, c.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe light updates: %w", err)
	}
	c.sub = sub
	return c, nil
}

func (c *Consumer) handle(ctx context.Context, ev *eventbus.Envelope) {
	name := ev.Metadata["codec"]
	if name == "" {
		name = "json"
	}
	codec, ok := c.codecs[name]
	if !ok {
		c.log.Warn("light update %s: unknown codec %q", ev.ID, name)
		return
	}
	batch, err := codec.Decode(ev.Payload)
	if err != nil {
		c.log.Warn("light update %s: %v", ev.ID, err)
		return
	}
	for _, s := range batch {
		logging.LogChunkSections(s.World, s.ChunkX, s.ChunkZ, s.SkySections, s.BlockSections)
		c.apply(ctx, s)
	}
}

// Stop отписывается от шины
func (c *Consumer) Stop() { c.sub.Unsubscribe() }
