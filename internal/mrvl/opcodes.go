package mrvl

import "github.com/taoyao-code/iot-btcfg/internal/hci"

// Marvell 厂商命令操作码（OGF=0x3F）
const (
	OpWritePCMSettings     hci.Opcode = 0xFC07
	OpWriteBDAddress       hci.Opcode = 0xFC22
	OpWritePCMSyncSettings hci.Opcode = 0xFC28
	OpWritePCMLinkSettings hci.Opcode = 0xFC29
	OpSetSCODataPath       hci.Opcode = 0xFC1D
)

// cmdNames 操作码到可读名的静态表
var cmdNames = map[hci.Opcode]string{
	OpWritePCMSettings:     "write_pcm_settings",
	OpWriteBDAddress:       "write_bd_address",
	OpWritePCMSyncSettings: "write_pcm_sync_settings",
	OpWritePCMLinkSettings: "write_pcm_link_settings",
	OpSetSCODataPath:       "set_sco_data_path",
}

// CmdString 返回操作码的可读名，未知操作码返回固定占位
func CmdString(op hci.Opcode) string {
	if name, ok := cmdNames[op]; ok {
		return name
	}
	return "unknown command"
}

// KnownOpcodes 返回全部已知厂商操作码（固定顺序，供 API 枚举）
func KnownOpcodes() []hci.Opcode {
	return []hci.Opcode{
		OpWritePCMSettings,
		OpWriteBDAddress,
		OpWritePCMSyncSettings,
		OpWritePCMLinkSettings,
		OpSetSCODataPath,
	}
}
