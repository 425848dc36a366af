package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalAdapterID(t *testing.T) {
	t.Run("环境变量优先", func(t *testing.T) {
		t.Setenv("BTCFG_ADAPTER_ID", "rack3-hci0")
		assert.Equal(t, "rack3-hci0", LocalAdapterID("/dev/mbtchar0"))
	})

	t.Run("缺省为主机名加设备路径", func(t *testing.T) {
		t.Setenv("BTCFG_ADAPTER_ID", "")
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		assert.Equal(t, host+":/dev/mbtchar0", LocalAdapterID("/dev/mbtchar0"))
	})

	t.Run("跨调用稳定", func(t *testing.T) {
		t.Setenv("BTCFG_ADAPTER_ID", "")
		assert.Equal(t, LocalAdapterID("/dev/mbtchar0"), LocalAdapterID("/dev/mbtchar0"))
	})
}
