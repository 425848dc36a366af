package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/iot-btcfg/internal/health"
	"github.com/taoyao-code/iot-btcfg/internal/migrate"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

// NewHealthAggregator 创建健康检查聚合器。
// 设备检查器总是挂接；数据库检查器只在启用持久化时挂接，
// 并带上迁移巡检（落后版本报 degraded）。Redis 检查器由 AddRedisChecker 追加。
func NewHealthAggregator(tr transport.Transport, dbpool *pgxpool.Pool, migrateDir string) *health.Aggregator {
	agg := health.NewAggregator(health.NewDeviceChecker(tr))
	if dbpool != nil {
		pending := func(ctx context.Context) ([]int64, error) {
			return migrate.Runner{Dir: migrateDir}.Pending(ctx, dbpool)
		}
		agg.AddChecker(health.NewDatabaseChecker(dbpool, pending))
	}
	return agg
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
