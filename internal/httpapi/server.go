// Package httpapi административный HTTP-интерфейс демона: чтение и запись
// уровней света, пересчёт, сбор и пересылка секций, /health и /metrics.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/lightsync/internal/chunks"
	"github.com/annel0/lightsync/internal/light"
	"github.com/annel0/lightsync/internal/lightapi"
	"github.com/annel0/lightsync/internal/logging"
	"github.com/annel0/lightsync/internal/middleware"
	"github.com/annel0/lightsync/internal/vec"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Config параметры сервера
type Config struct {
	Addr     string // по умолчанию ":2112"
	Service  string
	Facade   *lightapi.Facade
	Registry *prometheus.Registry // nil: глобальный регистр
	Auth     *middleware.TokenAuth
}

// Server HTTP-сервер поверх Facade
type Server struct {
	router *gin.Engine
	facade *lightapi.Facade
	api    *lightapi.API
	srv    *http.Server
	log    *logging.Logger
}

// PointRequest тело запросов записи и пересчёта
type PointRequest struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	Level   int    `json:"level"`
	Channel string `json:"channel" binding:"required"`
}

// SendRequest тело запроса пересылки
type SendRequest struct {
	Sections []chunks.Summary `json:"sections"`
}

// Response общий ответ API
type Response struct {
	Result string      `json:"result"`
	Error  string      `json:"error,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// New создаёт сервер и настраивает маршруты
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":2112"
	}
	if cfg.Service == "" {
		cfg.Service = "lightsync"
	}
	if cfg.Auth == nil {
		cfg.Auth = middleware.NewTokenAuth(nil)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Service))
	router.Use(middleware.NewRequestLogger().Handler())

	var reg prometheus.Registerer
	var gatherer prometheus.Gatherer
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
	}
	promMw := middleware.NewPrometheusMiddleware(cfg.Service, reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	s := &Server{
		router: router,
		facade: cfg.Facade,
		api:    lightapi.NewAPI(cfg.Facade),
		log:    logging.GetComponentLogger("http"),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes(cfg.Auth)
	return s
}

func (s *Server) setupRoutes(auth *middleware.TokenAuth) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/worlds", s.handleWorlds)

	api := s.router.Group("/api/light")
	api.GET("/:world/level", s.handleGetLevel)

	write := api.Group("/:world")
	write.Use(auth.Handler())
	{
		write.POST("/level", s.handleSetLevel)
		write.POST("/recalculate", s.handleRecalculate)
		write.POST("/collect", s.handleCollect)
		write.POST("/send", s.handleSend)
	}
}

// Handler корневой http.Handler (для тестов и встраивания)
func (s *Server) Handler() http.Handler { return s.router }

// Start запускает ListenAndServe в отдельной горутине
func (s *Server) Start() {
	go func() {
		s.log.Info("HTTP API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped: %v", err)
		}
	}()
}

// Shutdown мягко останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// statusFor отображает код результата в HTTP-статус.
func statusFor(code light.ResultCode, err error) int {
	switch code {
	case light.Success, light.NoChangesToRecalculate:
		return http.StatusOK
	case light.ChunkNotLoaded:
		return http.StatusConflict
	case light.WorldUnavailable:
		return http.StatusNotFound
	case light.NotImplemented:
		return http.StatusNotImplemented
	}
	switch {
	case errors.Is(err, light.ErrSyncUnavailable):
		return http.StatusServiceUnavailable
	case err != nil:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func respond(c *gin.Context, code light.ResultCode, err error, data interface{}) {
	resp := Response{Result: code.String(), Data: data}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusFor(code, err), resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "worlds": s.facade.Worlds()})
}

type worldInfo struct {
	Name  string              `json:"name"`
	Range chunks.SectionRange `json:"section_range"`
	Sky   bool                `json:"sky"`
	Block bool                `json:"block"`
}

func (s *Server) handleWorlds(c *gin.Context) {
	out := make([]worldInfo, 0)
	for _, name := range s.facade.Worlds() {
		rng, ok := s.facade.SectionRange(name)
		if !ok {
			continue
		}
		out = append(out, worldInfo{
			Name:  name,
			Range: rng,
			Sky:   s.facade.IsLightingSupported(name, light.Sky),
			Block: s.facade.IsLightingSupported(name, light.Block),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetLevel(c *gin.Context) {
	var coords [3]int
	for i, key := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Query(key))
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Result: light.Failed.String(), Error: "bad coordinate " + key})
			return
		}
		coords[i] = v
	}
	ch, ok := light.ParseChannel(c.DefaultQuery("channel", "all"))
	if !ok {
		c.JSON(http.StatusBadRequest, Response{Result: light.Failed.String(), Error: "unknown channel"})
		return
	}

	world := c.Param("world")
	level := s.facade.GetLevel(c.Request.Context(), world, vec.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}, ch)
	if level == light.LevelUnknown {
		c.JSON(http.StatusNotFound, Response{Result: light.WorldUnavailable.String()})
		return
	}
	c.JSON(http.StatusOK, Response{Result: light.Success.String(), Data: gin.H{"level": int(level)}})
}

func bindPoint(c *gin.Context) (PointRequest, light.Channel, bool) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Result: light.Failed.String(), Error: err.Error()})
		return req, light.NoChannels, false
	}
	ch, ok := light.ParseChannel(req.Channel)
	if !ok {
		c.JSON(http.StatusBadRequest, Response{Result: light.Failed.String(), Error: "unknown channel " + req.Channel})
		return req, light.NoChannels, false
	}
	return req, ch, true
}

func (s *Server) handleSetLevel(c *gin.Context) {
	req, ch, ok := bindPoint(c)
	if !ok {
		return
	}
	code, err := s.facade.SetLevel(c.Request.Context(), c.Param("world"), vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}, req.Level, ch)
	respond(c, code, err, nil)
}

func (s *Server) handleRecalculate(c *gin.Context) {
	req, ch, ok := bindPoint(c)
	if !ok {
		return
	}
	code, err := s.facade.Recalculate(c.Request.Context(), c.Param("world"), vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}, ch)
	respond(c, code, err, nil)
}

func (s *Server) handleCollect(c *gin.Context) {
	req, ch, ok := bindPoint(c)
	if !ok {
		return
	}
	summaries, code := s.api.CollectChunkSections(c.Param("world"), req.X, req.Y, req.Z, req.Level, ch)
	respond(c, code, nil, summaries)
}

func (s *Server) handleSend(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Result: light.Failed.String(), Error: err.Error()})
		return
	}
	code := s.api.SendChunk(c.Param("world"), req.Sections)
	respond(c, code, nil, nil)
}
