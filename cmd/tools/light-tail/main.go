package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/eventbus"
	"github.com/annel0/lightsync/internal/notify"
)

const defaultNatsURL = "nats://127.0.0.1:4222"

func main() {
	var (
		natsURL = flag.String("url", defaultNatsURL, "NATS server URL")
		stream  = flag.String("stream", "LIGHT", "JetStream stream name")
		command = flag.String("cmd", "tail", "Command: tail, stats")
		worlds  = flag.String("worlds", "", "World filter (comma-separated)")
		limit   = flag.Int("limit", 0, "Stop after N column updates (0 = unlimited)")
		window  = flag.Duration("for", 10*time.Second, "Collection window for stats")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to %s: %v", *natsURL, err)
	}
	defer bus.Close()

	zc, err := notify.NewZstdCodec()
	if err != nil {
		log.Fatalf("❌ zstd: %v", err)
	}
	defer zc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	filter := parseStringList(*worlds)
	switch *command {
	case "tail":
		err = tail(ctx, cancel, bus, zc, filter, *limit)
	case "stats":
		err = stats(ctx, bus, zc, filter, *window)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// tail печатает обновления колонн по мере поступления
func tail(ctx context.Context, cancel context.CancelFunc, bus eventbus.EventBus, codec notify.Codec, filter []string, limit int) error {
	fmt.Printf("🎬 Tailing light updates (limit: %d)\n", limit)
	var mu sync.Mutex
	count := 0
	consumer, err := notify.NewConsumer(ctx, bus, func(_ context.Context, s chunks.Summary) {
		if !matches(filter, s.World) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		printSummary(s)
		count++
		if limit > 0 && count >= limit {
			cancel()
		}
	}, codec)
	if err != nil {
		return err
	}
	defer consumer.Stop()

	<-ctx.Done()
	mu.Lock()
	fmt.Printf("\n📊 Total column updates: %d\n", count)
	mu.Unlock()
	return nil
}

// stats считает обновления колонн и секций по мирам за окно
func stats(ctx context.Context, bus eventbus.EventBus, codec notify.Codec, filter []string, window time.Duration) error {
	fmt.Printf("📊 Collecting light updates for %s\n", window)
	type counter struct{ columns, sky, block int }
	var mu sync.Mutex
	byWorld := make(map[string]*counter)

	consumer, err := notify.NewConsumer(ctx, bus, func(_ context.Context, s chunks.Summary) {
		if !matches(filter, s.World) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		c, ok := byWorld[s.World]
		if !ok {
			c = &counter{}
			byWorld[s.World] = c
		}
		c.columns++
		c.sky += len(s.SkySections)
		c.block += len(s.BlockSections)
	}, codec)
	if err != nil {
		return err
	}
	defer consumer.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(window):
	}

	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(byWorld))
	for name := range byWorld {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := byWorld[name]
		fmt.Printf("  %s: %d columns, %d sky sections, %d block sections\n", name, c.columns, c.sky, c.block)
	}
	return nil
}

func printSummary(s chunks.Summary) {
	fmt.Printf("[%s] %s chunk(%d,%d) sky=%v block=%v\n",
		time.Now().Format("15:04:05"), s.World, s.ChunkX, s.ChunkZ, s.SkySections, s.BlockSections)
}

func matches(filter []string, world string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, w := range filter {
		if w == world {
			return true
		}
	}
	return false
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
