package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/config"
	"github.com/annel0/lightsync/internal/critical"
	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/eventbus"
	"github.com/annel0/lightsync/internal/httpapi"
	"github.com/annel0/lightsync/internal/lightapi"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/metrics"
	"github.com/annel0/lightsync/internal/middleware"
	"github.com/annel0/lightsync/internal/notify"
	"github.com/annel0/lightsync/internal/observability"
	"github.com/annel0/lightsync/internal/storage"
	"github.com/annel0/lightsync/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// tickInterval период фонового прохода распространения прямого движка
const tickInterval = 50 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: $LIGHT_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.LogDir = cfg.Logging.Dir
	if err := logging.InitDefaultLogger("lightd"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()
	logging.Default().SetLevels(logging.ParseLevel(cfg.Logging.Level), logging.DEBUG)

	logging.Info("💡 Запуск lightd: world=%s variant=%s sections=[%d,%d]",
		cfg.Host.World, cfg.Host.Variant, cfg.Host.BottomSection, cfg.Host.TopSection)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logging.Error("❌ %v", err)
		os.Exit(1)
	}
	logging.Info("👋 lightd остановлен")
}

func run(ctx context.Context, cfg *config.Config) error {
	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Warn("OpenTelemetry недоступна: %v", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// === МЕТРИКИ ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollectors(reg)

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	exporter := eventbus.NewMetricsExporter(bus, reg, time.Second)
	exporter.Start()
	defer exporter.Stop()

	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("EventBus logging listener: %v", err)
	}

	var codec notify.Codec = notify.NewJSONCodec()
	if cfg.Light.ResendZstd {
		zc, err := notify.NewZstdCodec()
		if err != nil {
			return fmt.Errorf("zstd codec: %w", err)
		}
		defer zc.Close()
		codec = zc
	}
	resender := notify.NewResender(notify.Config{
		Source:     "lightd:" + cfg.Host.World,
		Capacity:   cfg.Light.ResendCapacity,
		FlushEvery: cfg.Light.ResendFlush(),
	}, bus, codec, m)
	defer func() {
		if err := resender.Stop(); err != nil {
			logging.Warn("resender stop: %v", err)
		}
	}()

	consumer, err := notify.NewConsumer(ctx, bus, func(_ context.Context, s chunks.Summary) {
		logging.Trace("light update delivered for %s (%d,%d)", s.World, s.ChunkX, s.ChunkZ)
	}, codec)
	if err != nil {
		return err
	}
	defer consumer.Stop()

	// === ЖУРНАЛ ===
	var journal storage.LightJournal
	if cfg.Light.Journal {
		journal, err = storage.Open(storage.Config{
			Backend:       cfg.Storage.Backend,
			Path:          cfg.Storage.Path,
			RedisAddr:     cfg.Storage.RedisAddr,
			RedisPassword: cfg.Storage.RedisPassword,
			RedisDB:       cfg.Storage.RedisDB,
			KeyPrefix:     cfg.Storage.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
		logging.Info("📒 Журнал уровней: backend=%s", cfg.Storage.Backend)
	}

	// === МИР И КООРДИНАТОР ===
	variant, ok := engine.ParseVariant(cfg.Host.Variant)
	if !ok {
		variant = engine.Direct
	}
	host := world.NewHost()
	defer host.Close()
	w := world.NewWorld(world.Options{
		Name:    cfg.Host.World,
		Range:   chunks.SectionRange{Bottom: cfg.Host.BottomSection, Top: cfg.Host.TopSection},
		Variant: variant,
	})
	w.LoadArea(cfg.Host.PreloadRadius)
	host.Add(w)

	facade := lightapi.New(lightapi.Options{
		Binder:   host,
		Sync:     critical.New(critical.Config{ClosingGrace: cfg.Light.ClosingGrace(), ClosingPoll: cfg.Light.ClosingPoll()}, m),
		Metrics:  m,
		Resender: resender,
		Journal:  journal,
	})
	if err := facade.BindWorld(w); err != nil {
		return err
	}
	if journal != nil {
		if _, err := lightapi.Replay(ctx, journal, facade, w.Name()); err != nil {
			logging.Warn("journal replay: %v", err)
		}
	}

	go runEngine(ctx, w)

	// === HTTP ===
	srv := httpapi.New(httpapi.Config{
		Addr:     fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Service:  cfg.Telemetry.ServiceName,
		Facade:   facade,
		Registry: reg,
		Auth:     middleware.NewTokenAuth(cfg.Server.GetJWTSecret()),
	})
	srv.Start()

	logging.Info("✅ lightd готов: http=:%d bus=%s", cfg.Server.GetMetricsPort(), busName(cfg.EventBus))

	<-ctx.Done()
	logging.Info("📡 Получен сигнал завершения, останавливаемся...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("HTTP shutdown: %v", err)
	}
	facade.UnbindWorld(w.Name())
	return nil
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("jetstream bus: %w", err)
	}
	return bus, nil
}

func busName(cfg config.EventBusConfig) string {
	if cfg.URL == "" {
		return "memory"
	}
	return cfg.URL
}

// runEngine крутит рабочий цикл хоста: тики прямого движка или исполнитель задач.
func runEngine(ctx context.Context, w *world.World) {
	if exec := w.Executor(); exec != nil {
		exec.Run(ctx)
		return
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DirectEngine().Tick(lightapi.DefaultUpdateBudget)
		}
	}
}
