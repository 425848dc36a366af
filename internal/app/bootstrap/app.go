package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/api"
	"github.com/taoyao-code/iot-btcfg/internal/api/middleware"
	"github.com/taoyao-code/iot-btcfg/internal/app"
	cfgpkg "github.com/taoyao-code/iot-btcfg/internal/config"
	"github.com/taoyao-code/iot-btcfg/internal/health"
	"github.com/taoyao-code/iot-btcfg/internal/metrics"
	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	"github.com/taoyao-code/iot-btcfg/internal/power"
	"github.com/taoyao-code/iot-btcfg/internal/provision"
	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
	"github.com/taoyao-code/iot-btcfg/internal/storage"
	"github.com/taoyao-code/iot-btcfg/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/iot-btcfg/internal/storage/pg"
)

const migrateDir = "db/migrations"

// Run 统一启动流程：基础组件 → 存储 → 电源/设备 → 驱动核心 →
// 后台Worker → HTTP，最后等待信号并按依赖反序关停。
// 存储均为可选，未启用时对应端点降级而非启动失败；
// 设备传输打不开则直接失败返回（没有设备这个进程没有存在意义）。
func Run(cfg *cfgpkg.Config, version string, log *zap.Logger) error {
	log.Info("starting btcfgd",
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("device", cfg.Device.Path),
		zap.Bool("mock", cfg.Device.Mock))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	ready := health.New()

	presets, err := app.LoadPresets(cfg.Vendor, log)
	if err != nil {
		log.Error("load audio presets failed", zap.Error(err))
		return err
	}
	params, err := app.BuildVendorParams(cfg.Vendor, presets, log)
	if err != nil {
		log.Error("build vendor params failed", zap.Error(err))
		return err
	}

	// ========== 阶段2: 存储 ==========
	var repo *pgstorage.Repository
	var dbpool *pgxpool.Pool
	var leases storage.CoreRepo
	if cfg.Database.Enabled {
		dbpool, err = app.ConnectDBAndMigrate(context.Background(), cfg.Database, migrateDir, log)
		if err != nil {
			log.Error("database initialization failed", zap.Error(err))
			return err
		}
		defer dbpool.Close()
		repo = &pgstorage.Repository{Pool: dbpool}
		log.Info("database ready", zap.String("dsn", maskDSN(cfg.Database.DSN)))

		gdb, err := gormrepo.Open(cfg.Database.DSN)
		if err != nil {
			log.Error("address pool open failed", zap.Error(err))
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		leases = gormrepo.New(gdb)
	}
	ready.SetStoreReady(true)

	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	queue, redisQueue := app.NewProvisionQueues(redisClient, log)

	// ========== 阶段3: 无线电上电 ==========
	pw := power.NewClient(power.Config{
		Enabled: cfg.Power.Enable,
		Socket:  cfg.Power.Socket,
		Timeout: cfg.Power.Timeout,
	}, log)
	if err := pw.PowerOn(context.Background()); err != nil {
		log.Error("radio power on failed", zap.Error(err))
		return err
	}

	// ========== 阶段4: 打开设备传输（内部带有限次重试）==========
	tr := app.NewTransport(cfg.Device, log)
	if err := tr.Open(context.Background()); err != nil {
		log.Error("device transport open failed", zap.Error(err))
		_ = pw.PowerOff(context.Background())
		return err
	}
	ready.SetDeviceReady(true)
	log.Info("device transport ready")

	// ========== 阶段5: 驱动核心 ==========
	tracker := runtracker.NewTracker(
		runtracker.WithCapacity(cfg.Tracker.Capacity),
		runtracker.WithStallAfter(cfg.Tracker.StallAfter),
		runtracker.WithObserver(app.NewTrackObserver(appm)),
	)

	var rec *app.RunRecorder
	if repo != nil {
		adapterID := app.LocalAdapterID(cfg.Device.Path)
		dbID, err := repo.EnsureAdapter(context.Background(), adapterID)
		if err != nil {
			log.Warn("adapter registration failed, run history disabled",
				zap.String("adapter_id", adapterID), zap.Error(err))
		} else {
			rec = app.NewRunRecorder(repo, dbID, log)
			log.Info("run recorder enabled", zap.String("adapter_id", adapterID))
		}
	}

	observers := []mrvl.Observer{tracker, app.NewMetricsObserver(appm)}
	if rec != nil {
		observers = append(observers, rec)
	}
	sink := app.NewResultSink(tracker, rec, appm, log)

	mgr, err := mrvl.New(tr, params, mrvl.Callbacks{
		OnFirmwareResult: sink,
		OnScoResult:      sink,
	}, log, mrvl.MultiObserver(observers...))
	if err != nil {
		log.Error("manager initialization failed", zap.Error(err))
		_ = tr.Close()
		_ = pw.PowerOff(context.Background())
		return err
	}
	log.Info("vendor pipeline manager initialized")

	// ========== 阶段6: 后台Worker ==========
	wctx, wcancel := context.WithCancel(context.Background())
	defer wcancel()

	svc := provision.NewService(mgr, leases, log)
	workers := cfg.Provision.Workers
	if workers <= 0 {
		workers = 1
	}
	var firstWorker *provision.Worker
	for i := 0; i < workers; i++ {
		w := provision.NewWorker(queue, svc, cfg.Provision.PollInterval, log, app.NewTrackObserver(appm))
		if firstWorker == nil {
			firstWorker = w
		}
		go w.Start(wctx)
	}
	log.Info("provision workers started", zap.Int("count", workers))

	monitor := app.NewRunMonitor(tracker, repo, queue, tr, appm, log)
	go monitor.Start(wctx)

	if redisQueue != nil {
		go app.NewDeadLetterCleaner(redisQueue, log).Start(wctx)
	}

	// ========== 阶段7: HTTP 管理面 ==========
	httpSrv := app.NewHTTPServer(cfg.HTTP, version, cfg.Metrics.Path, metricsHandler, ready.Ready)

	healthAgg := app.NewHealthAggregator(tr, dbpool, migrateDir)
	app.AddRedisChecker(healthAgg, redisClient)

	authCfg := middleware.AuthConfig{
		APIKeys: cfg.HTTP.APIKeys,
		Enabled: len(cfg.HTTP.APIKeys) > 0,
	}
	rlCfg := middleware.RateLimitConfig{
		Enable: cfg.HTTP.RateLimit.Enable,
		RPS:    cfg.HTTP.RateLimit.RPS,
		Burst:  cfg.HTTP.RateLimit.Burst,
	}
	api.RegisterRoutes(httpSrv.Engine(), api.Deps{
		Manager:   mgr,
		Tracker:   tracker,
		Transport: tr,
		Presets:   presets,
		Repo:      repo,
		Power:     pw,
		Queue:     queue,
		Worker:    firstWorker,
	}, authCfg, rlCfg, log)
	app.RegisterHealthRoutes(httpSrv.Engine(), healthAgg)

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
	log.Info("all services ready")

	// ========== 阶段8: 等待关闭信号，反序关停 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("received shutdown signal, gracefully shutting down...")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	log.Info("http server stopped")

	wcancel()
	log.Info("background workers stopped")

	if err := pw.PowerOff(shCtx); err != nil {
		log.Warn("radio power off failed", zap.Error(err))
	}

	if err := tr.Close(); err != nil {
		log.Warn("device transport close failed", zap.Error(err))
	}
	log.Info("device transport closed")

	if rec != nil {
		rec.Close()
	}

	log.Info("shutdown complete")
	return nil
}

// maskDSN 脱敏数据库连接字符串（隐藏密码）
func maskDSN(dsn string) string {
	if idx := strings.Index(dsn, "@"); idx > 0 {
		if pwdIdx := strings.LastIndex(dsn[:idx], ":"); pwdIdx > 0 {
			return dsn[:pwdIdx+1] + "****" + dsn[idx:]
		}
	}
	return dsn
}
