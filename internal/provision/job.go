package provision

import (
	"errors"
	"fmt"
	"time"
)

// 作业可请求的流水线名
const (
	PipeFirmware = "firmware"
	PipeSCO      = "sco"
)

var ErrNoAdapter = errors.New("job has no adapter id")

// Job 一次预配置作业：为一台适配器写入 BD 地址并配置音频通路。
// BDAddr 为空时从地址池租取；Pipelines 为空时默认 firmware+sco。
type Job struct {
	ID        string    `json:"id"`
	AdapterID string    `json:"adapter_id"`
	BDAddr    string    `json:"bd_addr"`
	Pipelines []string  `json:"pipelines"`
	Priority  int       `json:"priority"`
	Retries   int       `json:"retries"`
	MaxRetry  int       `json:"max_retry"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize 校验并补全默认值
func (j *Job) Normalize() error {
	if j.AdapterID == "" {
		return ErrNoAdapter
	}
	if len(j.Pipelines) == 0 {
		j.Pipelines = []string{PipeFirmware, PipeSCO}
	}
	for _, p := range j.Pipelines {
		if p != PipeFirmware && p != PipeSCO {
			return fmt.Errorf("unknown pipeline %q", p)
		}
	}
	if j.MaxRetry <= 0 {
		j.MaxRetry = 3
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	return nil
}

// NeedsAddress 作业是否需要一个 BD 地址（包含固件流水线且未指定地址）
func (j *Job) NeedsAddress() bool {
	if j.BDAddr != "" {
		return false
	}
	for _, p := range j.Pipelines {
		if p == PipeFirmware {
			return true
		}
	}
	return false
}
