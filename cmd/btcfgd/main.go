package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/iot-btcfg/internal/config"
	"github.com/taoyao-code/iot-btcfg/internal/logging"
)

// Version 固件配置器版本号，随厂商参数表一起滚动
const Version = "B001"

func main() {
	configPath := flag.String("config", "", "配置文件路径（留空时依次尝试 $BTCFG_CONFIG 与 ./configs/config.yaml）")
	showVersion := flag.Bool("version", false, "打印版本后退出")
	flag.Parse()

	if *showVersion {
		fmt.Println("btcfgd " + Version)
		return
	}

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动服务，阻塞到收到退出信号
	if err := bootstrap.Run(cfg, Version, logger); err != nil {
		logger.Error("btcfgd exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
