package storage

import (
	"context"
	"time"

	"github.com/taoyao-code/iot-btcfg/internal/storage/models"
)

// CoreRepo 面向预配置流程的存储抽象。
// 约束：
// - 禁止上层直接写 SQL，统一通过本接口访问
// - 实现需要提供事务封装 WithTx，保证租约路径原子性
// - 接口必须保持 DB-agnostic（面向模型与基础类型）
type CoreRepo interface {
	// ---------- 事务 ----------
	// WithTx 在单个事务中执行 fn，fn 内使用 repo 执行的所有写入/读取都在同一事务中。
	// 实现应保证嵌套调用正确复用当前事务。
	WithTx(ctx context.Context, fn func(repo CoreRepo) error) error

	// ---------- 适配器 ----------
	// EnsureAdapter 若 adapterID 不存在则创建，返回适配器记录
	EnsureAdapter(ctx context.Context, adapterID string) (*models.Adapter, error)
	// GetAdapter 通过标识查询适配器
	GetAdapter(ctx context.Context, adapterID string) (*models.Adapter, error)
	// ListAdapters 简单列表示例（仅用于管理/调试）
	ListAdapters(ctx context.Context, limit, offset int) ([]models.Adapter, error)
	// RecordAdapterAddress 记录成功写入控制器的 BD 地址并刷新配置时间
	RecordAdapterAddress(ctx context.Context, adapterID, bdAddr string, at time.Time) error

	// ---------- 地址池 ----------
	// SeedAddresses 批量插入空闲地址，已存在的地址跳过，返回实际新增数量
	SeedAddresses(ctx context.Context, addrs []string) (int64, error)
	// LeaseNextAddress 原子租出一个空闲地址（行锁 + SKIP LOCKED），池空时返回 (nil, false, nil)
	LeaseNextAddress(ctx context.Context, adapterID, jobID string) (*models.AddressLease, bool, error)
	// CommitLease 将租约标记为已确认（地址已写入控制器）
	CommitLease(ctx context.Context, bdAddr string) error
	// ReleaseLease 归还租约（作业失败时调用），清除租出信息
	ReleaseLease(ctx context.Context, bdAddr string) error
	// CountLeases 按状态统计地址池
	CountLeases(ctx context.Context) (free, held, committed int64, err error)
}
