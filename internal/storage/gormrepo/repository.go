package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taoyao-code/iot-btcfg/internal/storage"
	"github.com/taoyao-code/iot-btcfg/internal/storage/models"
)

// Open 以给定 DSN 建立 GORM 连接（静默 SQL 日志，SQL 追踪统一走 pgx 侧）。
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// Repository 基于 GORM 的 CoreRepo 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的 CoreRepo 实例。
func New(db *gorm.DB) storage.CoreRepo {
	return &Repository{db: db}
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.CoreRepo) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// EnsureAdapter 若适配器不存在则插入，存在则刷新 updated_at。
func (r *Repository) EnsureAdapter(ctx context.Context, adapterID string) (*models.Adapter, error) {
	record := &models.Adapter{
		AdapterID: adapterID,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "adapter_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": gorm.Expr("NOW()")}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}

	return r.GetAdapter(ctx, adapterID)
}

// GetAdapter 通过标识查询适配器。
func (r *Repository) GetAdapter(ctx context.Context, adapterID string) (*models.Adapter, error) {
	var adapter models.Adapter
	err := r.db.WithContext(ctx).Where("adapter_id = ?", adapterID).First(&adapter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &adapter, err
}

// ListAdapters 分页返回适配器列表，按 id 倒序。
func (r *Repository) ListAdapters(ctx context.Context, limit, offset int) ([]models.Adapter, error) {
	var adapters []models.Adapter
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&adapters).Error; err != nil {
		return nil, err
	}
	return adapters, nil
}

// RecordAdapterAddress 记录已写入控制器的 BD 地址并刷新配置时间。
func (r *Repository) RecordAdapterAddress(ctx context.Context, adapterID, bdAddr string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Adapter{}).
		Where("adapter_id = ?", adapterID).
		Updates(map[string]interface{}{
			"bd_addr":            bdAddr,
			"last_configured_at": at,
			"updated_at":         gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SeedAddresses 批量插入空闲地址，冲突（已存在）的地址跳过。
func (r *Repository) SeedAddresses(ctx context.Context, addrs []string) (int64, error) {
	if len(addrs) == 0 {
		return 0, nil
	}
	records := make([]models.AddressLease, 0, len(addrs))
	for _, a := range addrs {
		records = append(records, models.AddressLease{BDAddr: a, Status: models.LeaseFree})
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records)
	return res.RowsAffected, res.Error
}

// LeaseNextAddress 行锁定一个空闲地址并标记为已租出。
// 使用 SKIP LOCKED 避免多个 worker 争抢同一行。
func (r *Repository) LeaseNextAddress(ctx context.Context, adapterID, jobID string) (*models.AddressLease, bool, error) {
	var lease models.AddressLease
	now := time.Now()
	err := r.WithTx(ctx, func(repo storage.CoreRepo) error {
		txr := repo.(*Repository)
		res := txr.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.LeaseFree).
			Order("id ASC").
			Limit(1).
			Find(&lease)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return txr.db.WithContext(ctx).
			Model(&models.AddressLease{}).
			Where("id = ?", lease.ID).
			Updates(map[string]interface{}{
				"status":     models.LeaseHeld,
				"adapter_id": adapterID,
				"job_id":     jobID,
				"leased_at":  now,
				"updated_at": gorm.Expr("NOW()"),
			}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	lease.Status = models.LeaseHeld
	lease.AdapterID = &adapterID
	lease.JobID = &jobID
	lease.LeasedAt = &now
	return &lease, true, nil
}

// CommitLease 将租约标记为已确认。
func (r *Repository) CommitLease(ctx context.Context, bdAddr string) error {
	res := r.db.WithContext(ctx).
		Model(&models.AddressLease{}).
		Where("bd_addr = ? AND status = ?", bdAddr, models.LeaseHeld).
		Updates(map[string]interface{}{
			"status":     models.LeaseCommitted,
			"updated_at": gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReleaseLease 归还租约并清除租出信息。
func (r *Repository) ReleaseLease(ctx context.Context, bdAddr string) error {
	res := r.db.WithContext(ctx).
		Model(&models.AddressLease{}).
		Where("bd_addr = ? AND status = ?", bdAddr, models.LeaseHeld).
		Updates(map[string]interface{}{
			"status":     models.LeaseFree,
			"adapter_id": nil,
			"job_id":     nil,
			"leased_at":  nil,
			"updated_at": gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountLeases 按状态统计地址池。
func (r *Repository) CountLeases(ctx context.Context) (free, held, committed int64, err error) {
	type row struct {
		Status int32
		N      int64
	}
	var rows []row
	err = r.db.WithContext(ctx).
		Model(&models.AddressLease{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, 0, err
	}
	for _, rw := range rows {
		switch rw.Status {
		case models.LeaseFree:
			free = rw.N
		case models.LeaseHeld:
			held = rw.N
		case models.LeaseCommitted:
			committed = rw.N
		}
	}
	return free, held, committed, nil
}
