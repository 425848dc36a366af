package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	"github.com/taoyao-code/iot-btcfg/internal/storage"
)

var (
	ErrNoFreeAddress = errors.New("address pool exhausted")
	ErrNoAddrSource  = errors.New("no bd address given and no address pool configured")
)

// Service 执行单个预配置作业。
// 同一控制器上的流水线串行执行（互斥），避免与管理器的单飞控制冲突。
type Service struct {
	mgr    *mrvl.Manager
	leases storage.CoreRepo // 可为 nil（未启用数据库）
	log    *zap.Logger

	mu sync.Mutex
}

// NewService 创建作业执行器。leases 为 nil 时禁用地址池，作业必须自带地址。
func NewService(mgr *mrvl.Manager, leases storage.CoreRepo, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{mgr: mgr, leases: leases, log: log}
}

// Execute 运行作业的全部流水线。返回 nil 表示全部成功。
// 固件流水线成功即提交地址租约；失败则归还。SCO 失败不回滚已写入的地址。
func (s *Service) Execute(ctx context.Context, job *Job) error {
	if err := job.Normalize(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leases != nil {
		if _, err := s.leases.EnsureAdapter(ctx, job.AdapterID); err != nil {
			return fmt.Errorf("ensure adapter: %w", err)
		}
	}

	leased, err := s.resolveAddress(ctx, job)
	if err != nil {
		return err
	}

	for _, p := range job.Pipelines {
		switch p {
		case PipeFirmware:
			if err := s.runFirmware(ctx, job, leased); err != nil {
				return err
			}
			leased = false // 成功路径已提交，失败路径已归还
		case PipeSCO:
			if err := s.runSco(ctx, job); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveAddress 确定本次作业的 BD 地址来源。
// 返回 true 表示地址来自租约，终局时需提交或归还。
func (s *Service) resolveAddress(ctx context.Context, job *Job) (bool, error) {
	if !job.NeedsAddress() {
		if job.BDAddr != "" {
			addr, err := mrvl.ParseBDAddress(job.BDAddr)
			if err != nil {
				return false, err
			}
			if err := s.mgr.SetBDAddress(addr); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	if s.leases == nil {
		return false, ErrNoAddrSource
	}
	lease, ok, err := s.leases.LeaseNextAddress(ctx, job.AdapterID, job.ID)
	if err != nil {
		return false, fmt.Errorf("lease address: %w", err)
	}
	if !ok {
		return false, ErrNoFreeAddress
	}

	addr, err := mrvl.ParseBDAddress(lease.BDAddr)
	if err != nil {
		// 池中存在坏数据：归还并报错
		_ = s.leases.ReleaseLease(ctx, lease.BDAddr)
		return false, fmt.Errorf("leased address %q: %w", lease.BDAddr, err)
	}
	if err := s.mgr.SetBDAddress(addr); err != nil {
		_ = s.leases.ReleaseLease(ctx, lease.BDAddr)
		return false, err
	}

	// 回写作业：重试时复用同一地址，不再二次租取
	job.BDAddr = addr.String()
	s.log.Info("address leased",
		zap.String("job_id", job.ID),
		zap.String("adapter_id", job.AdapterID),
		zap.String("bd_addr", lease.BDAddr))
	return true, nil
}

func (s *Service) runFirmware(ctx context.Context, job *Job, leased bool) error {
	res, err := s.await(ctx, s.mgr.StartFirmwareConfig)
	if err != nil {
		s.releaseIfLeased(ctx, job, leased)
		return fmt.Errorf("firmware config: %w", err)
	}
	if !res.Success {
		s.releaseIfLeased(ctx, job, leased)
		return fmt.Errorf("firmware config run %s: %w", res.RunID, res.Err)
	}

	if s.leases != nil {
		if leased {
			if err := s.leases.CommitLease(ctx, job.BDAddr); err != nil {
				s.log.Warn("commit lease failed", zap.String("bd_addr", job.BDAddr), zap.Error(err))
			}
		}
		if err := s.leases.RecordAdapterAddress(ctx, job.AdapterID, job.BDAddr, time.Now()); err != nil {
			s.log.Warn("record adapter address failed", zap.String("adapter_id", job.AdapterID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) runSco(ctx context.Context, job *Job) error {
	res, err := s.await(ctx, s.mgr.StartScoConfig)
	if err != nil {
		return fmt.Errorf("sco config: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("sco config run %s: %w", res.RunID, res.Err)
	}
	return nil
}

// await 触发一条流水线并等待终局。
// 触发即失败时终局结果已送达通道；上下文取消时放弃等待（运行留在途，
// 由追踪器标记停滞）。
func (s *Service) await(ctx context.Context, start func(func(mrvl.Result)) (string, error)) (mrvl.Result, error) {
	ch := make(chan mrvl.Result, 1)
	_, err := start(func(r mrvl.Result) { ch <- r })
	if err != nil {
		select {
		case res := <-ch:
			return res, nil
		default:
			return mrvl.Result{}, err
		}
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return mrvl.Result{}, ctx.Err()
	}
}

func (s *Service) releaseIfLeased(ctx context.Context, job *Job, leased bool) {
	if !leased || s.leases == nil || job.BDAddr == "" {
		return
	}
	if err := s.leases.ReleaseLease(ctx, job.BDAddr); err != nil {
		s.log.Warn("release lease failed", zap.String("bd_addr", job.BDAddr), zap.Error(err))
		return
	}
	// 地址已归还，重试时重新租取
	job.BDAddr = ""
}
