package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/iot-btcfg/internal/config"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

// NewTransport 根据配置创建设备传输。
// mock 模式使用回环传输（所有命令立即成功完成），否则打开字符设备。
func NewTransport(cfg cfgpkg.DeviceConfig, log *zap.Logger) transport.Transport {
	if cfg.Mock {
		log.Info("device transport: loopback (mock mode)")
		return transport.NewLoopback()
	}

	log.Info("device transport: chardev", zap.String("path", cfg.Path))
	return transport.NewChardev(transport.ChardevConfig{
		Path:           cfg.Path,
		OpenRetries:    cfg.OpenRetries,
		OpenRetryDelay: cfg.OpenRetryInterval,
		WriteRate:      cfg.WriteRate,
		WriteBurst:     cfg.WriteBurst,
		ReadBufSize:    cfg.ReadBufSize,
		MaxFrameLen:    cfg.MaxFrameLen,
	}, log)
}
