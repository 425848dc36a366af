package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/power"
)

// PowerHandler 射频电源控制处理器
type PowerHandler struct {
	client *power.Client
	logger *zap.Logger
}

// NewPowerHandler 创建电源控制处理器
func NewPowerHandler(client *power.Client, logger *zap.Logger) *PowerHandler {
	return &PowerHandler{client: client, logger: logger}
}

// SetPowerRequest 电源开关请求
type SetPowerRequest struct {
	On *bool `json:"on" binding:"required"`
}

// SetPower 开关蓝牙射频电源
// @Summary 射频电源开关
// @Description 通过电源管理套接字上下电；配置未启用电源控制时返回503
// @Tags 电源
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body SetPowerRequest true "请求参数"
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 502 {object} map[string]interface{} "电源管理拒绝"
// @Failure 503 {object} map[string]interface{} "电源控制未启用"
// @Router /api/v1/radio/power [post]
func (h *PowerHandler) SetPower(c *gin.Context) {
	if h.client == nil || !h.client.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "power control disabled"})
		return
	}

	var req SetPowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var err error
	if *req.On {
		err = h.client.PowerOn(ctx)
	} else {
		err = h.client.PowerOff(ctx)
	}
	if err != nil {
		h.logger.Error("power command failed", zap.Bool("on", *req.On), zap.Error(err))
		if errors.Is(err, power.ErrPowerRefused) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	state := "off"
	if *req.On {
		state = "on"
	}
	c.JSON(http.StatusOK, gin.H{"power": state})
}
