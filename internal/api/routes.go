package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/taoyao-code/iot-btcfg/docs"
	"github.com/taoyao-code/iot-btcfg/internal/api/middleware"
	"github.com/taoyao-code/iot-btcfg/internal/audio"
	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	"github.com/taoyao-code/iot-btcfg/internal/power"
	"github.com/taoyao-code/iot-btcfg/internal/provision"
	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
	pgstorage "github.com/taoyao-code/iot-btcfg/internal/storage/pg"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

// Deps 路由依赖集。Repo/Power/Queue/Worker 可为 nil，对应端点降级。
type Deps struct {
	Manager   *mrvl.Manager
	Tracker   *runtracker.Tracker
	Transport transport.Transport
	Presets   *audio.PresetMap
	Repo      *pgstorage.Repository
	Power     *power.Client
	Queue     provision.Queue
	Worker    *provision.Worker
}

// RegisterRoutes 注册管理API路由
func RegisterRoutes(
	r *gin.Engine,
	deps Deps,
	authCfg middleware.AuthConfig,
	rlCfg middleware.RateLimitConfig,
	logger *zap.Logger,
) {
	if r == nil || deps.Manager == nil || deps.Tracker == nil {
		return
	}

	cfgHandler := NewConfigHandler(deps.Manager, deps.Tracker, deps.Presets, deps.Transport, logger)
	histHandler := NewHistoryHandler(deps.Tracker, deps.Repo, logger)
	powerHandler := NewPowerHandler(deps.Power, logger)
	provHandler := NewProvisionHandler(deps.Queue, deps.Worker, logger)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API路由组(限流+认证)
	api := r.Group("/api/v1")
	if rlCfg.Enable {
		api.Use(middleware.RateLimit(rlCfg, logger))
		logger.Info("api rate limit enabled",
			zap.Float64("rps", rlCfg.RPS), zap.Int("burst", rlCfg.Burst))
	}
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 电源控制
	api.POST("/radio/power", powerHandler.SetPower)

	// 配置流水线
	api.POST("/config/firmware", cfgHandler.StartFirmware)
	api.POST("/config/sco", cfgHandler.StartSco)
	api.GET("/config/status", cfgHandler.Status)

	// 运行历史
	api.GET("/config/runs", histHandler.ListRuns)
	api.GET("/config/runs/:id", histHandler.GetRun)
	api.GET("/hci/commands", histHandler.ListHCICommands)
	api.GET("/vendor/opcodes", histHandler.ListOpcodes)

	// 预配置作业
	api.POST("/provision/jobs", provHandler.EnqueueJob)
	api.GET("/provision/stats", provHandler.Stats)

	logger.Info("api routes registered", zap.Int("endpoints", 10))
}
