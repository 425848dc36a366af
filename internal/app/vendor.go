package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/audio"
	cfgpkg "github.com/taoyao-code/iot-btcfg/internal/config"
	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
)

// LoadPresets 加载音频预设表，未配置文件时使用内置预设
func LoadPresets(cfg cfgpkg.VendorConfig, log *zap.Logger) (*audio.PresetMap, error) {
	if cfg.PresetFile == "" {
		return audio.DefaultPresetMap(), nil
	}
	m, err := audio.LoadPresetMap(cfg.PresetFile)
	if err != nil {
		return nil, err
	}
	log.Info("audio presets loaded",
		zap.String("file", cfg.PresetFile),
		zap.Strings("presets", m.Names()))
	return m, nil
}

// BuildVendorParams 组装流水线参数集：选定音频预设的负载模板，
// 外加可选的静态 BD 地址（未配置时留空，触发固件配置前必须先设置）。
func BuildVendorParams(cfg cfgpkg.VendorConfig, presets *audio.PresetMap, log *zap.Logger) (mrvl.Params, error) {
	name := cfg.AudioPreset
	if name == "" {
		name = audio.DefaultPresetName
	}
	preset, ok := presets.Lookup(name)
	if !ok {
		return mrvl.Params{}, fmt.Errorf("audio preset %q not found", name)
	}
	params, err := preset.VendorParams()
	if err != nil {
		return mrvl.Params{}, fmt.Errorf("audio preset %q: %w", name, err)
	}

	if cfg.BDAddr != "" {
		addr, err := mrvl.ParseBDAddress(cfg.BDAddr)
		if err != nil {
			return mrvl.Params{}, err
		}
		params.BDAddr = addr
		log.Info("bd address configured from file", zap.String("bd_addr", cfg.BDAddr))
	}
	return params, nil
}
