package power

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 蓝牙电源归平台 wireless 守护进程管：通过 unix socket 发一行命令、
// 取一行应答。应答 "OK" 为成功，其余视为拒绝。
const (
	cmdPowerOn  = "BT_POWER_ON"
	cmdPowerOff = "BT_POWER_OFF"

	DefaultSocketPath = "/var/run/wireless/socket"
	defaultTimeout    = 3 * time.Second
)

var ErrPowerRefused = errors.New("power command refused")

// Config 电源控制配置。Enabled=false 时全部操作空转（无守护进程的台架环境）。
type Config struct {
	Enabled bool
	Socket  string
	Timeout time.Duration
}

func (c *Config) withDefaults() {
	if c.Socket == "" {
		c.Socket = DefaultSocketPath
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Client wireless 守护进程客户端
type Client struct {
	cfg Config
	log *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, log: log}
}

// Enabled 是否实际下发电源命令
func (c *Client) Enabled() bool { return c.cfg.Enabled }

// PowerOn 上电
func (c *Client) PowerOn(ctx context.Context) error { return c.exec(ctx, cmdPowerOn) }

// PowerOff 下电
func (c *Client) PowerOff(ctx context.Context) error { return c.exec(ctx, cmdPowerOff) }

func (c *Client) exec(ctx context.Context, cmd string) error {
	if !c.cfg.Enabled {
		c.log.Debug("power control disabled, skipping", zap.String("cmd", cmd))
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.cfg.Socket)
	if err != nil {
		return fmt.Errorf("dial wireless daemon: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read reply for %s: %w", cmd, err)
	}
	reply = strings.TrimSpace(reply)
	if reply != "OK" {
		return fmt.Errorf("%w: %s -> %q", ErrPowerRefused, cmd, reply)
	}

	c.log.Info("power command ok", zap.String("cmd", cmd))
	return nil
}
