package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BTCFG_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "iot-btcfg", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/dev/mbtchar0", cfg.Device.Path)
	assert.Equal(t, 20, cfg.Device.OpenRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Device.OpenRetryInterval)
	assert.Equal(t, "default", cfg.Vendor.AudioPreset)
	assert.False(t, cfg.Power.Enable)
	assert.Equal(t, "/var/run/wireless/socket", cfg.Power.Socket)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 1, cfg.Provision.Workers)
	assert.Equal(t, 128, cfg.Tracker.Capacity)
	assert.Equal(t, 10*time.Second, cfg.Tracker.StallAfter)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
app:
  name: btcfg-test
  env: test
device:
  path: /dev/mbtchar1
  mock: true
vendor:
  bdAddr: "20:4E:F6:01:02:03"
  audioPreset: wideband
redis:
  enabled: true
  addr: redis:6379
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "btcfg-test", cfg.App.Name)
	assert.Equal(t, "/dev/mbtchar1", cfg.Device.Path)
	assert.True(t, cfg.Device.Mock)
	assert.Equal(t, "20:4E:F6:01:02:03", cfg.Vendor.BDAddr)
	assert.Equal(t, "wideband", cfg.Vendor.AudioPreset)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	// 未覆盖的字段保留默认值
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 1024, cfg.Device.MaxFrameLen)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BTCFG_CONFIG", "")
	t.Setenv("BTCFG_DEVICE_PATH", "/dev/mbtchar2")
	t.Setenv("BTCFG_POWER_ENABLE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/dev/mbtchar2", cfg.Device.Path)
	assert.True(t, cfg.Power.Enable)
}

func TestLoad_ConfigEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: from-env-file\n"), 0o644))
	t.Setenv("BTCFG_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", cfg.App.Name)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
