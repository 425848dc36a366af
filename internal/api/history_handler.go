package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
	pgstorage "github.com/taoyao-code/iot-btcfg/internal/storage/pg"
)

// HistoryHandler 运行历史与命令日志查询处理器。
// repo 为 nil 时仅内存追踪可查，数据库端点返回 501。
type HistoryHandler struct {
	tracker *runtracker.Tracker
	repo    *pgstorage.Repository
	logger  *zap.Logger
}

// NewHistoryHandler 创建历史查询处理器
func NewHistoryHandler(tracker *runtracker.Tracker, repo *pgstorage.Repository, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{tracker: tracker, repo: repo, logger: logger}
}

// ListRuns 查询最近的已结束运行
// @Summary 查询运行历史
// @Description 默认读内存环形缓存；source=db 时读数据库（跨重启）
// @Tags 运行历史
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "数量(默认20)"
// @Param source query string false "memory|db"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 501 {object} map[string]interface{} "数据库未启用"
// @Router /api/v1/config/runs [get]
func (h *HistoryHandler) ListRuns(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil && vv > 0 {
			limit = vv
		}
	}

	if c.Query("source") == "db" {
		if h.repo == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "database disabled"})
			return
		}
		runs, err := h.repo.ListConfigRuns(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "source": "db"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": h.tracker.Recent(limit), "source": "memory"})
}

// GetRun 查询单次运行及其命令轨迹
// @Summary 查询单次运行
// @Description 先查内存追踪（含完整轨迹），未命中时回退数据库
// @Tags 运行历史
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "运行ID"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 404 {object} map[string]interface{} "运行不存在"
// @Router /api/v1/config/runs/{id} [get]
func (h *HistoryHandler) GetRun(c *gin.Context) {
	id := c.Param("id")

	if run, ok := h.tracker.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"run": run, "source": "memory"})
		return
	}

	if h.repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	ctx := c.Request.Context()
	run, err := h.repo.GetConfigRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	cmds, err := h.repo.ListCmdLog(ctx, id, 100)
	if err != nil {
		h.logger.Warn("list cmd log failed", zap.String("run_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "commands": cmds, "source": "db"})
}

// ListHCICommands 查询HCI命令日志
// @Summary 查询命令日志
// @Description 数据库持久化的全量命令收发记录
// @Tags 运行历史
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "数量(默认100)"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 501 {object} map[string]interface{} "数据库未启用"
// @Router /api/v1/hci/commands [get]
func (h *HistoryHandler) ListHCICommands(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "command log requires database"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil && vv > 0 {
			limit = vv
		}
	}

	cmds, err := h.repo.ListCmdLog(c.Request.Context(), "", limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": cmds})
}

// ListOpcodes 枚举已知厂商操作码
// @Summary 厂商操作码表
// @Description 驱动可下发的全部厂商HCI命令
// @Tags 厂商命令
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/vendor/opcodes [get]
func (h *HistoryHandler) ListOpcodes(c *gin.Context) {
	known := mrvl.KnownOpcodes()
	ops := make([]gin.H, 0, len(known))
	for _, op := range known {
		ops = append(ops, gin.H{
			"opcode": op.String(),
			"name":   mrvl.CmdString(op),
			"ogf":    op.OGF(),
			"ocf":    op.OCF(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"opcodes": ops})
}
