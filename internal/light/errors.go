package light

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncUnavailable воркер закрывается и не освободил флаг за отведённое время
	ErrSyncUnavailable  = errors.New("light: synchronization unavailable")
	ErrChunkNotLoaded   = errors.New("light: chunk not loaded")
	ErrWorldUnavailable = errors.New("light: world not available")
	ErrNotImplemented   = errors.New("light: not implemented")
	// ErrBindingFailed не удалось разрешить хэндлы движка для мира
	ErrBindingFailed = errors.New("light: engine binding failed")
	// ErrSectionMissing секция подтверждена, но данные уже выгружены
	ErrSectionMissing = errors.New("light: section data missing")
)

// TaskPanicError паника внутри задачи, выполненной в критической секции
type TaskPanicError struct {
	Value interface{}
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("light: task panicked: %v", e.Value)
}

// ResultFromError отображает ошибку ядра в код результата внешнего API.
func ResultFromError(err error) ResultCode {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrChunkNotLoaded):
		return ChunkNotLoaded
	case errors.Is(err, ErrWorldUnavailable):
		return WorldUnavailable
	case errors.Is(err, ErrNotImplemented):
		return NotImplemented
	default:
		return Failed
	}
}
