package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/iot-btcfg/internal/config"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

func TestNewTransport(t *testing.T) {
	t.Run("mock模式用回环", func(t *testing.T) {
		tr := NewTransport(cfgpkg.DeviceConfig{Mock: true}, zap.NewNop())
		_, ok := tr.(*transport.Loopback)
		assert.True(t, ok)
	})

	t.Run("默认用字符设备", func(t *testing.T) {
		tr := NewTransport(cfgpkg.DeviceConfig{Path: "/dev/mbtchar0"}, zap.NewNop())
		_, ok := tr.(*transport.Chardev)
		assert.True(t, ok)
	})
}
