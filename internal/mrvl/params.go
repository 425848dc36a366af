package mrvl

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBadBDAddress = errors.New("bad bd address")

// BDAddress 控制器公有地址，a[0] 为书写序最高字节（AA:BB:CC:DD:EE:FF 的 AA）。
// 写入命令参数时按厂商约定反序（a[5] 在前）。
type BDAddress [6]byte

// ParseBDAddress 解析 "AA:BB:CC:DD:EE:FF"（冒号或连字符分隔）
func ParseBDAddress(s string) (BDAddress, error) {
	var a BDAddress
	s = strings.TrimSpace(s)
	norm := strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(norm, ":")
	if len(parts) != 6 {
		return a, fmt.Errorf("%w: %q", ErrBadBDAddress, s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("%w: %q", ErrBadBDAddress, s)
		}
		var b byte
		if _, err := fmt.Sscanf(p, "%02x", &b); err != nil {
			return a, fmt.Errorf("%w: %q", ErrBadBDAddress, s)
		}
		a[i] = b
	}
	return a, nil
}

func (a BDAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (a BDAddress) IsZero() bool { return a == BDAddress{} }

// bd address 参数块布局：paramID[1]=0xFE | len[1]=0x06 | addr[6]（反序）
const (
	bdAddrParamID  = 0xFE
	bdAddrParamLen = 0x06
	bdAddrTotalLen = 2 + 6
)

// PopulateBDAddressParams 填充 write_bd_address 的 8 字节参数块，
// 地址按反序写入（a[5] 在前）。dst 长度不足时返回 false。
func PopulateBDAddressParams(dst []byte, a BDAddress) bool {
	if len(dst) < bdAddrTotalLen {
		return false
	}
	dst[0] = bdAddrParamID
	dst[1] = bdAddrParamLen
	for i := 0; i < 6; i++ {
		dst[2+i] = a[5-i]
	}
	return true
}

// 默认 PCM/SCO 负载模板（PCM 从模式、同步时钟、首个 SCO 链路时隙、PCM 通路）
var (
	defaultPCMSettings     = []byte{0x02}
	defaultPCMSyncSettings = []byte{0x03, 0x00, 0x03}
	defaultPCMLinkSettings = []byte{0x03, 0x00}
	defaultSCODataPath     = []byte{0x01}
)

// Params 一次流水线运行所用的命令参数集。
// BDAddr 在固件配置启动前一次性写入，运行期间不再变更。
type Params struct {
	BDAddr          BDAddress
	PCMSettings     []byte
	PCMSyncSettings []byte
	PCMLinkSettings []byte
	SCODataPath     []byte
}

// DefaultParams 返回出厂默认参数集
func DefaultParams() Params {
	return Params{
		PCMSettings:     append([]byte(nil), defaultPCMSettings...),
		PCMSyncSettings: append([]byte(nil), defaultPCMSyncSettings...),
		PCMLinkSettings: append([]byte(nil), defaultPCMLinkSettings...),
		SCODataPath:     append([]byte(nil), defaultSCODataPath...),
	}
}

// Validate 校验负载模板长度与命令定义一致
func (p *Params) Validate() error {
	if len(p.PCMSettings) != 1 {
		return fmt.Errorf("pcm settings payload must be 1 byte, got %d", len(p.PCMSettings))
	}
	if len(p.PCMSyncSettings) != 3 {
		return fmt.Errorf("pcm sync settings payload must be 3 bytes, got %d", len(p.PCMSyncSettings))
	}
	if len(p.PCMLinkSettings) != 2 {
		return fmt.Errorf("pcm link settings payload must be 2 bytes, got %d", len(p.PCMLinkSettings))
	}
	if len(p.SCODataPath) != 1 {
		return fmt.Errorf("sco data path payload must be 1 byte, got %d", len(p.SCODataPath))
	}
	return nil
}

// bdAddressParams 生成 write_bd_address 参数块
func (p *Params) bdAddressParams() []byte {
	buf := make([]byte, bdAddrTotalLen)
	PopulateBDAddressParams(buf, p.BDAddr)
	return buf
}

// clone 深拷贝，避免运行之间共享负载模板底层数组
func (p Params) clone() Params {
	return Params{
		BDAddr:          p.BDAddr,
		PCMSettings:     append([]byte(nil), p.PCMSettings...),
		PCMSyncSettings: append([]byte(nil), p.PCMSyncSettings...),
		PCMLinkSettings: append([]byte(nil), p.PCMLinkSettings...),
		SCODataPath:     append([]byte(nil), p.SCODataPath...),
	}
}
