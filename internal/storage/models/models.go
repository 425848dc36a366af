package models

import (
	"time"
)

// 注意：
// - 保持与 db/migrations/0001_init_up.sql 完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// 地址租约状态
const (
	LeaseFree      int32 = 0 // 未分配
	LeaseHeld      int32 = 1 // 已租出（作业进行中）
	LeaseCommitted int32 = 2 // 已写入控制器并确认
)

// Adapter 映射 adapters 表
type Adapter struct {
	// 主键
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 适配器唯一标识（序列号或主机名）
	AdapterID string `gorm:"column:adapter_id;type:text;not null;uniqueIndex"`
	// 当前写入的 BD 地址，可空
	BDAddr *string `gorm:"column:bd_addr;type:text"`
	// 固件信息，可空
	FwVer *string `gorm:"column:fw_ver;type:text"`
	// 最近一次配置完成时间
	LastConfiguredAt *time.Time `gorm:"column:last_configured_at"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Adapter) TableName() string { return "adapters" }

// AddressLease 映射 bd_address_leases 表（预配置地址池）
type AddressLease struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 规范化形式 AA:BB:CC:DD:EE:FF
	BDAddr string `gorm:"column:bd_addr;type:text;not null;uniqueIndex"`
	Status int32  `gorm:"column:status;not null;default:0"`
	// 租出后填充
	AdapterID *string    `gorm:"column:adapter_id;type:text"`
	JobID     *string    `gorm:"column:job_id;type:text"`
	LeasedAt  *time.Time `gorm:"column:leased_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (AddressLease) TableName() string { return "bd_address_leases" }
