package power

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeDaemon 单连接假守护进程，按命令表应答
func fakeDaemon(t *testing.T, replies map[string]string) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "w.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 64)
				n, err := c.Read(buf)
				if err != nil {
					return
				}
				cmd := strings.TrimSpace(string(buf[:n]))
				reply, ok := replies[cmd]
				if !ok {
					reply = "ERR unknown"
				}
				_, _ = c.Write([]byte(reply + "\n"))
			}(conn)
		}
	}()
	return sock
}

func TestClient_PowerOnOff(t *testing.T) {
	sock := fakeDaemon(t, map[string]string{
		"BT_POWER_ON":  "OK",
		"BT_POWER_OFF": "OK",
	})
	c := NewClient(Config{Enabled: true, Socket: sock, Timeout: time.Second}, nil)

	if err := c.PowerOn(context.Background()); err != nil {
		t.Fatalf("power on: %v", err)
	}
	if err := c.PowerOff(context.Background()); err != nil {
		t.Fatalf("power off: %v", err)
	}
}

func TestClient_Refused(t *testing.T) {
	sock := fakeDaemon(t, map[string]string{
		"BT_POWER_ON": "ERR busy",
	})
	c := NewClient(Config{Enabled: true, Socket: sock, Timeout: time.Second}, nil)

	err := c.PowerOn(context.Background())
	if !errors.Is(err, ErrPowerRefused) {
		t.Fatalf("expected ErrPowerRefused, got %v", err)
	}
}

func TestClient_DisabledNoops(t *testing.T) {
	c := NewClient(Config{Enabled: false, Socket: "/nonexistent"}, nil)
	if err := c.PowerOn(context.Background()); err != nil {
		t.Fatalf("disabled power on must noop: %v", err)
	}
	if err := c.PowerOff(context.Background()); err != nil {
		t.Fatalf("disabled power off must noop: %v", err)
	}
}

func TestClient_DaemonUnreachable(t *testing.T) {
	c := NewClient(Config{Enabled: true, Socket: filepath.Join(t.TempDir(), "gone.sock"), Timeout: 200 * time.Millisecond}, nil)
	if err := c.PowerOn(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
}
