package light

// ResultCode результат операции, возвращаемый внешним вызывающим
type ResultCode int

const (
	Success ResultCode = iota
	ChunkNotLoaded
	WorldUnavailable
	NoChangesToRecalculate
	Failed
	NotImplemented
)

func (r ResultCode) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case ChunkNotLoaded:
		return "CHUNK_NOT_LOADED"
	case WorldUnavailable:
		return "WORLD_NOT_AVAILABLE"
	case NoChangesToRecalculate:
		return "RECALCULATE_NO_CHANGES"
	case Failed:
		return "FAILED"
	case NotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return "UNKNOWN"
	}
}
