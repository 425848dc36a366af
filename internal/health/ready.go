package health

import "sync/atomic"

// Readiness 就绪状态聚合（设备、存储）
type Readiness struct {
	deviceReady atomic.Bool
	storeReady  atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetDeviceReady(v bool) { r.deviceReady.Store(v) }
func (r *Readiness) SetStoreReady(v bool)  { r.storeReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.deviceReady.Load() && r.storeReady.Load()
}
