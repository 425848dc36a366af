package app

import (
	"os"
)

// LocalAdapterID 本机适配器标识，用于 adapters 表建档。
// 优先取环境变量 BTCFG_ADAPTER_ID；否则用 主机名:设备路径。
// 必须跨重启稳定，否则每次启动都会新建一行适配器记录。
func LocalAdapterID(devicePath string) string {
	if id := os.Getenv("BTCFG_ADAPTER_ID"); id != "" {
		return id
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return hostname + ":" + devicePath
}
