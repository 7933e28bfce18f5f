package lightapi

import (
	"context"
	"errors"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/vec"
)

// API внешняя обёртка над Facade: только коды результата, без ошибок.
// Ошибки фасада записываются в лог.
type API struct {
	facade *Facade
}

// NewAPI создаёт обёртку
func NewAPI(f *Facade) *API { return &API{facade: f} }

// Facade возвращает фасад, над которым построена обёртка
func (a *API) Facade() *Facade { return a.facade }

func (a *API) SetRawLightLevel(world string, x, y, z, level int, ch light.Channel) light.ResultCode {
	code, err := a.facade.SetLevel(context.Background(), world, vec.Vec3{X: x, Y: y, Z: z}, level, ch)
	a.report("SetRawLightLevel", world, err)
	return code
}

func (a *API) GetRawLightLevel(world string, x, y, z int, ch light.Channel) int {
	return int(a.facade.GetLevel(context.Background(), world, vec.Vec3{X: x, Y: y, Z: z}, ch))
}

func (a *API) RecalculateLighting(world string, x, y, z int, ch light.Channel) light.ResultCode {
	code, err := a.facade.Recalculate(context.Background(), world, vec.Vec3{X: x, Y: y, Z: z}, ch)
	a.report("RecalculateLighting", world, err)
	return code
}

// CollectChunkSections возвращает сводки колонн, затронутых светом уровня level
func (a *API) CollectChunkSections(world string, x, y, z, level int, ch light.Channel) ([]chunks.Summary, light.ResultCode) {
	regions, code := a.facade.Collect(world, vec.Vec3{X: x, Y: y, Z: z}, level, ch)
	if code != light.Success {
		return nil, code
	}
	out := make([]chunks.Summary, 0, len(regions))
	for _, r := range regions {
		out = append(out, r.Summary())
	}
	return out, light.Success
}

// SendChunk пересылает сводки, полученные от CollectChunkSections
func (a *API) SendChunk(world string, summaries []chunks.Summary) light.ResultCode {
	rng, ok := a.facade.SectionRange(world)
	if !ok {
		return light.WorldUnavailable
	}
	regions := make([]*chunks.DirtyRegion, 0, len(summaries))
	for _, s := range summaries {
		if s.World != "" && s.World != world {
			continue
		}
		s.World = world
		regions = append(regions, chunks.FromSummary(s, rng))
	}
	return a.facade.SendChunk(context.Background(), world, regions)
}

func (a *API) IsLightingSupported(world string, ch light.Channel) bool {
	return a.facade.IsLightingSupported(world, ch)
}

func (a *API) report(op, world string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, light.ErrSyncUnavailable) {
		a.facade.log.Error("%s in %s: light worker unavailable: %v", op, world, err)
		return
	}
	a.facade.log.Warn("%s in %s: %v", op, world, err)
}
