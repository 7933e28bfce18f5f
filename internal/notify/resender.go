// Package notify пересылает изменённые секции света подписчикам: сводки
// колонн копятся, сливаются по ключу и уходят пакетом LightUpdate.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/eventbus"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/metrics"
)

// resendPriority приоритет LightUpdate: выше порога отбрасывания шины
const resendPriority = 7

// Config параметры пакетирования
type Config struct {
	Source     string
	Capacity   int
	FlushEvery time.Duration
}

// Resender сливает регионы одной колонны и отправляет их по таймеру
// или при достижении Capacity колонн.
type Resender struct {
	cfg     Config
	bus     eventbus.EventBus
	codec   Codec
	metrics *metrics.Collectors
	log     *logging.Logger

	mu      sync.Mutex
	pending map[chunks.Key]*chunks.DirtyRegion
	order   []chunks.Key

	quit chan struct{}
	done chan struct{}
	stop sync.Once
}

// NewResender создаёт и запускает пакетировщик. codec nil означает JSON.
func NewResender(cfg Config, bus eventbus.EventBus, codec Codec, m *metrics.Collectors) *Resender {
	if codec == nil {
		codec = NewJSONCodec()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 50 * time.Millisecond
	}
	r := &Resender{
		cfg:     cfg,
		bus:     bus,
		codec:   codec,
		metrics: m,
		log:     logging.GetSyncLogger(),
		pending: make(map[chunks.Key]*chunks.DirtyRegion),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Add ставит регионы на отправку. Пустые регионы пропускаются,
// повторные по тому же ключу объединяются.
func (r *Resender) Add(regions ...*chunks.DirtyRegion) {
	r.mu.Lock()
	for _, region := range regions {
		if region == nil || region.Empty() {
			continue
		}
		key := region.Key()
		if cur, ok := r.pending[key]; ok {
			if err := cur.Merge(region); err == nil {
				continue
			}
		} else {
			r.order = append(r.order, key)
		}
		r.pending[key] = region.Clone()
	}
	full := len(r.order) >= r.cfg.Capacity
	r.mu.Unlock()

	if full {
		if err := r.Flush(context.Background()); err != nil {
			r.log.Warn("resend flush on capacity failed: %v", err)
		}
	}
}

// Pending число колонн в буфере
func (r *Resender) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Flush отправляет накопленное одним событием.
func (r *Resender) Flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.order) == 0 {
		r.mu.Unlock()
		return nil
	}
	batch := make([]chunks.Summary, 0, len(r.order))
	for _, key := range r.order {
		batch = append(batch, r.pending[key].Summary())
	}
	r.pending = make(map[chunks.Key]*chunks.DirtyRegion)
	r.order = r.order[:0]
	r.mu.Unlock()

	payload, err := r.codec.Encode(batch)
	if err != nil {
		return err
	}
	env := eventbus.NewEnvelope(r.cfg.Source, eventbus.EventLightUpdate, resendPriority, payload)
	env.Metadata = map[string]string{"codec": r.codec.Name()}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.bus.Publish(ctx, env); err != nil {
		return err
	}
	r.metrics.ResendFlush(len(batch))
	r.log.Trace("resent %d chunk columns (%dB, %s)", len(batch), len(payload), r.codec.Name())
	return nil
}

func (r *Resender) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.log.Warn("resend flush failed: %v", err)
			}
		case <-r.quit:
			return
		}
	}
}

// Stop останавливает таймер и отправляет остаток.
func (r *Resender) Stop() error {
	r.stop.Do(func() {
		close(r.quit)
		<-r.done
	})
	return r.Flush(context.Background())
}
