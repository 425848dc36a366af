package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/audio"
	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

// 同步等待终局的请求侧时限。流水线本身没有超时，
// 等待超时只放弃本次等待，不取消运行。
const waitTimeout = 30 * time.Second

// ConfigHandler 配置流水线触发与状态API处理器
type ConfigHandler struct {
	mgr     *mrvl.Manager
	tracker *runtracker.Tracker
	presets *audio.PresetMap
	tr      transport.Transport
	logger  *zap.Logger
}

// NewConfigHandler 创建配置API处理器
func NewConfigHandler(
	mgr *mrvl.Manager,
	tracker *runtracker.Tracker,
	presets *audio.PresetMap,
	tr transport.Transport,
	logger *zap.Logger,
) *ConfigHandler {
	if presets == nil {
		presets = audio.DefaultPresetMap()
	}
	return &ConfigHandler{
		mgr:     mgr,
		tracker: tracker,
		presets: presets,
		tr:      tr,
		logger:  logger,
	}
}

// StartFirmwareRequest 触发固件配置请求
type StartFirmwareRequest struct {
	BDAddr string `json:"bd_addr"` // 可选；缺省时使用已下发的地址
	Wait   bool   `json:"wait"`    // true时同步等待终局
}

// StartScoRequest 触发SCO配置请求
type StartScoRequest struct {
	Preset string `json:"preset"` // 可选；音频参数预设名
	Wait   bool   `json:"wait"`
}

// StartFirmware 触发固件配置流水线（写BD地址）
// @Summary 触发固件配置
// @Description 向控制器写入BD地址；bd_addr缺省时使用已下发的地址
// @Tags 配置流水线
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body StartFirmwareRequest false "请求参数"
// @Success 200 {object} map[string]interface{} "wait=true且已终局"
// @Success 202 {object} map[string]interface{} "已触发"
// @Failure 400 {object} map[string]interface{} "地址非法或未设置"
// @Failure 409 {object} map[string]interface{} "流水线在途"
// @Router /api/v1/config/firmware [post]
func (h *ConfigHandler) StartFirmware(c *gin.Context) {
	var req StartFirmwareRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.BDAddr != "" {
		addr, err := mrvl.ParseBDAddress(req.BDAddr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := h.mgr.SetBDAddress(addr); err != nil {
			// 固件配置在途期间地址单写
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
	}

	h.startAndReply(c, req.Wait, h.mgr.StartFirmwareConfig)
}

// StartSco 触发SCO/PCM音频通路配置流水线
// @Summary 触发SCO配置
// @Description 依次下发4条PCM/SCO配置命令；preset可切换音频参数模板
// @Tags 配置流水线
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body StartScoRequest false "请求参数"
// @Success 200 {object} map[string]interface{} "wait=true且已终局"
// @Success 202 {object} map[string]interface{} "已触发"
// @Failure 400 {object} map[string]interface{} "预设不存在或参数非法"
// @Failure 409 {object} map[string]interface{} "流水线在途"
// @Router /api/v1/config/sco [post]
func (h *ConfigHandler) StartSco(c *gin.Context) {
	var req StartScoRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Preset != "" {
		preset, ok := h.presets.Lookup(req.Preset)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "unknown preset",
				"preset": req.Preset,
				"known":  h.presets.Names(),
			})
			return
		}
		params, err := preset.VendorParams()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := h.mgr.SetAudioParams(params); err != nil {
			if errors.Is(err, mrvl.ErrPipelineBusy) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.startAndReply(c, req.Wait, h.mgr.StartScoConfig)
}

// Status 查询在途运行与驱动状态
// @Summary 配置状态
// @Description 在途运行快照（含命令轨迹与停滞标记）及驱动侧计数
// @Tags 配置流水线
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/config/status [get]
func (h *ConfigHandler) Status(c *gin.Context) {
	driver := gin.H{"in_flight": h.mgr.Active()}
	if p, ok := h.tr.(interface{ Pool() *hci.Pool }); ok {
		pool := p.Pool()
		driver["buffers"] = gin.H{
			"in_use":       pool.InUse(),
			"allocs":       pool.Allocs(),
			"denied":       pool.Denied(),
			"double_frees": pool.DoubleFrees(),
		}
	}
	if s, ok := h.tr.(interface{ Stats() transport.Stats }); ok {
		driver["transport"] = s.Stats()
	}

	c.JSON(http.StatusOK, gin.H{
		"bd_addr": h.mgr.BDAddress().String(),
		"active":  h.tracker.Active(),
		"driver":  driver,
	})
}

// startAndReply 触发一条流水线并按wait语义应答。
// 触发即失败时终局结果已送达通道，应答携带失败详情。
func (h *ConfigHandler) startAndReply(c *gin.Context, wait bool, start func(func(mrvl.Result)) (string, error)) {
	ch := make(chan mrvl.Result, 1)
	runID, err := start(func(r mrvl.Result) { ch <- r })
	if err != nil {
		select {
		case res := <-ch:
			c.JSON(http.StatusBadGateway, resultPayload(res))
		default:
			switch {
			case errors.Is(err, mrvl.ErrPipelineBusy):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, mrvl.ErrNoBDAddress):
				c.JSON(http.StatusBadRequest, gin.H{
					"error":   err.Error(),
					"message": "请在请求中携带 bd_addr 或通过配置/预配置作业下发地址",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
		}
		return
	}

	if !wait {
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "started"})
		return
	}

	select {
	case res := <-ch:
		c.JSON(http.StatusOK, resultPayload(res))
	case <-time.After(waitTimeout):
		// 运行继续，结果可查 /api/v1/config/runs/:id
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "running"})
	case <-c.Request.Context().Done():
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "running"})
	}
}

// resultPayload 终局结果应答体
func resultPayload(res mrvl.Result) gin.H {
	out := gin.H{
		"run_id":      res.RunID,
		"pipeline":    res.Pipeline.String(),
		"success":     res.Success,
		"final_state": res.FinalState.String(),
		"last_opcode": res.LastOpcode.String(),
		"hci_status":  res.Status,
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	return out
}
