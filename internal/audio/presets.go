package audio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
)

// Preset 一组 PCM/SCO 通路负载模板。YAML 里写字节值序列，定长：
// pcm_settings[1] / pcm_sync_settings[3] / pcm_link_settings[2] / sco_data_path[1]
type Preset struct {
	PCMSettings     []int `yaml:"pcm_settings"`
	PCMSyncSettings []int `yaml:"pcm_sync_settings"`
	PCMLinkSettings []int `yaml:"pcm_link_settings"`
	SCODataPath     []int `yaml:"sco_data_path"`
}

// PresetMap 预设名 -> 负载模板
type PresetMap struct {
	Presets map[string]Preset `yaml:"presets"`
}

const DefaultPresetName = "default"

// DefaultPresetMap 返回内置预设（default = 出厂 PCM 从模式通路）
func DefaultPresetMap() *PresetMap {
	return &PresetMap{
		Presets: map[string]Preset{
			DefaultPresetName: {
				PCMSettings:     []int{0x02},
				PCMSyncSettings: []int{0x03, 0x00, 0x03},
				PCMLinkSettings: []int{0x03, 0x00},
				SCODataPath:     []int{0x01},
			},
		},
	}
}

// LoadPresetMap 从 YAML 文件加载预设表并逐一校验，内置 default 始终存在
func LoadPresetMap(path string) (*PresetMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset map: %w", err)
	}
	var m PresetMap
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal preset map: %w", err)
	}
	if m.Presets == nil {
		m.Presets = make(map[string]Preset)
	}
	if _, ok := m.Presets[DefaultPresetName]; !ok {
		m.Presets[DefaultPresetName] = DefaultPresetMap().Presets[DefaultPresetName]
	}
	for name, p := range m.Presets {
		if _, err := p.VendorParams(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return &m, nil
}

// Lookup 取某个预设。名字不存在时明确返回 false，由调用方决定报错还是
// 回落——写错的预设名静默配成默认 PCM 参数比快速失败危险得多。
func (m *PresetMap) Lookup(name string) (Preset, bool) {
	if m == nil || m.Presets == nil {
		return Preset{}, false
	}
	p, ok := m.Presets[name]
	return p, ok
}

// Names 已加载的预设名（API 枚举用）
func (m *PresetMap) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Presets))
	for name := range m.Presets {
		out = append(out, name)
	}
	return out
}

// VendorParams 把预设转换成流水线参数集并校验（BDAddr 由调用方另行填充）
func (p Preset) VendorParams() (mrvl.Params, error) {
	out := mrvl.DefaultParams()
	var err error
	if out.PCMSettings, err = toBytes("pcm_settings", p.PCMSettings); err != nil {
		return mrvl.Params{}, err
	}
	if out.PCMSyncSettings, err = toBytes("pcm_sync_settings", p.PCMSyncSettings); err != nil {
		return mrvl.Params{}, err
	}
	if out.PCMLinkSettings, err = toBytes("pcm_link_settings", p.PCMLinkSettings); err != nil {
		return mrvl.Params{}, err
	}
	if out.SCODataPath, err = toBytes("sco_data_path", p.SCODataPath); err != nil {
		return mrvl.Params{}, err
	}
	if err := out.Validate(); err != nil {
		return mrvl.Params{}, err
	}
	return out, nil
}

func toBytes(field string, vals []int) ([]byte, error) {
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 0xFF {
			return nil, fmt.Errorf("%s[%d] out of byte range: %d", field, i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
