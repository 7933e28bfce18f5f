// Package critical выполняет изменения света так, чтобы рабочий цикл
// движка в это время не трогал общие структуры.
//
// Цикл нельзя прервать, поэтому вместо мьютекса используется кооперативный
// захват: вызывающий выставляет бит Busy в слове состояния цикла через CAS,
// выполняет задачу у себя и затем снимает бит и один раз толкает цикл.
package critical

import (
	"fmt"
	"runtime"
	"time"

	"github.com/annel0/lightsync/internal/engine"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/metrics"
)

// Config ожидание при закрывающемся цикле
type Config struct {
	ClosingGrace time.Duration
	ClosingPoll  time.Duration
}

// DefaultConfig 3 секунды ожидания с опросом раз в 50 мс
func DefaultConfig() Config {
	return Config{
		ClosingGrace: 3 * time.Second,
		ClosingPoll:  50 * time.Millisecond,
	}
}

// Synchronizer реализует RunExclusive. Один экземпляр обслуживает любые циклы.
type Synchronizer struct {
	cfg     Config
	metrics *metrics.Collectors
	log     *logging.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// New создаёт синхронизатор; нулевые поля cfg берутся из DefaultConfig.
func New(cfg Config, m *metrics.Collectors) *Synchronizer {
	def := DefaultConfig()
	if cfg.ClosingGrace <= 0 {
		cfg.ClosingGrace = def.ClosingGrace
	}
	if cfg.ClosingPoll <= 0 {
		cfg.ClosingPoll = def.ClosingPoll
	}
	return &Synchronizer{
		cfg:     cfg,
		metrics: m,
		log:     logging.GetSyncLogger(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// RunExclusive захватывает Busy у цикла w, выполняет task в текущей горутине
// и освобождает цикл. Освобождение и толчок цикла выполняются всегда, даже
// если task вернула ошибку или запаниковала; паника возвращается как
// *light.TaskPanicError.
//
// Если цикл закрывается и не отпускает Busy дольше ClosingGrace, возвращается
// ошибка, оборачивающая light.ErrSyncUnavailable; task при этом не вызывается.
func (s *Synchronizer) RunExclusive(w engine.PausableWorker, task func() error) (err error) {
	start := time.Now()
	state := w.State()
	if err := s.claim(state); err != nil {
		return err
	}

	defer func() {
		r := recover()
		s.release(w)
		s.metrics.ObserveExclusive(start)
		if r != nil {
			s.log.Error("task panicked inside exclusive section: %v", r)
			err = &light.TaskPanicError{Value: r}
		}
	}()

	return task()
}

func (s *Synchronizer) tryClaim(state engine.FlagWord) bool {
	f := state.Load()
	return state.CompareAndSwap(f&^engine.FlagBusy, f|engine.FlagBusy)
}

func (s *Synchronizer) claim(state engine.FlagWord) error {
	for {
		if s.tryClaim(state) {
			return nil
		}
		if state.Load()&engine.FlagClosing != 0 {
			return s.awaitClosing(state)
		}
		s.metrics.SpinRetry()
		runtime.Gosched()
	}
}

// awaitClosing опрашивает слово состояния, пока не истечёт ClosingGrace.
func (s *Synchronizer) awaitClosing(state engine.FlagWord) error {
	s.log.Debug("worker is closing, will wait up to %s", s.cfg.ClosingGrace)
	s.metrics.ClosingWait()

	deadline := s.now().Add(s.cfg.ClosingGrace)
	for {
		if s.tryClaim(state) {
			return nil
		}
		if !s.now().Before(deadline) {
			s.metrics.SyncUnavailable()
			s.log.Error("worker did not release Busy within %s of closing", s.cfg.ClosingGrace)
			return fmt.Errorf("%w: worker busy after %s of closing", light.ErrSyncUnavailable, s.cfg.ClosingGrace)
		}
		s.sleep(s.cfg.ClosingPoll)
	}
}

// release снимает Busy и один раз толкает цикл.
func (s *Synchronizer) release(w engine.PausableWorker) {
	state := w.State()
	for {
		f := state.Load()
		if state.CompareAndSwap(f, f&^engine.FlagBusy) {
			break
		}
	}
	w.Step()
}
