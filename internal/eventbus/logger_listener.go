package eventbus

import (
	"context"

	"github.com/annel0/lightsync/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в DEBUG.
func StartLoggingListener(ctx context.Context, bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logging.Info("EventBus: logging listener subscribed")
	return sub, nil
}
