package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/iot-btcfg/internal/config"
	"github.com/taoyao-code/iot-btcfg/internal/health"
	"github.com/taoyao-code/iot-btcfg/internal/provision"
	redisstorage "github.com/taoyao-code/iot-btcfg/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil, nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewProvisionQueues 组装预配置作业队列。
// Redis 可用时用持久化队列（进程重启作业不丢），否则退化为内存队列。
// 返回的第二个值是底层 Redis 队列，未启用 Redis 时为 nil。
func NewProvisionQueues(client *redisstorage.Client, logger *zap.Logger) (provision.Queue, *redisstorage.ProvisionQueue) {
	if client != nil {
		rq := redisstorage.NewProvisionQueue(client)
		logger.Info("provision queue: redis")
		return provision.NewRedisQueue(rq), rq
	}
	logger.Info("provision queue: in-memory (jobs lost on restart)")
	return provision.NewMemQueue(), nil
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
