package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/provision"
)

// ProvisionHandler 预配置作业入队与统计处理器
type ProvisionHandler struct {
	queue  provision.Queue
	worker *provision.Worker
	logger *zap.Logger
}

// NewProvisionHandler 创建预配置处理器。worker 可为 nil（仅统计缺失）。
func NewProvisionHandler(queue provision.Queue, worker *provision.Worker, logger *zap.Logger) *ProvisionHandler {
	return &ProvisionHandler{queue: queue, worker: worker, logger: logger}
}

// EnqueueJobRequest 预配置作业入队请求
type EnqueueJobRequest struct {
	AdapterID string   `json:"adapter_id" binding:"required"`
	BDAddr    string   `json:"bd_addr"`   // 可选；缺省时从地址池租取
	Pipelines []string `json:"pipelines"` // 可选；默认 firmware+sco
	Priority  int      `json:"priority"`  // 0-9，大者先执行
	MaxRetry  int      `json:"max_retry"` // 可选；默认3
}

// EnqueueJob 提交预配置作业
// @Summary 提交预配置作业
// @Description 作业由后台消费者执行：租地址（如缺省）、固件配置、SCO配置
// @Tags 预配置
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body EnqueueJobRequest true "作业参数"
// @Success 202 {object} map[string]interface{} "已入队"
// @Failure 400 {object} map[string]interface{} "作业参数非法"
// @Failure 429 {object} map[string]interface{} "队列已满"
// @Router /api/v1/provision/jobs [post]
func (h *ProvisionHandler) EnqueueJob(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provisioning disabled"})
		return
	}

	var req EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := &provision.Job{
		ID:        uuid.NewString(),
		AdapterID: req.AdapterID,
		BDAddr:    req.BDAddr,
		Pipelines: req.Pipelines,
		Priority:  req.Priority,
		MaxRetry:  req.MaxRetry,
	}
	if err := job.Normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		if errors.Is(err, provision.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("provision job enqueued",
		zap.String("job_id", job.ID),
		zap.String("adapter_id", job.AdapterID),
		zap.Strings("pipelines", job.Pipelines),
		zap.Int("priority", job.Priority))

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":    job.ID,
		"pipelines": job.Pipelines,
		"priority":  job.Priority,
	})
}

// Stats 查询作业队列统计
// @Summary 预配置统计
// @Description 队列深度、死信数与消费者成功/失败/重试计数
// @Tags 预配置
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/provision/stats [get]
func (h *ProvisionHandler) Stats(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provisioning disabled"})
		return
	}

	if h.worker != nil {
		c.JSON(http.StatusOK, h.worker.Stats(c.Request.Context()))
		return
	}
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": stats})
}
