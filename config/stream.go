package config

import (
	"errors"
	"fmt"
	"time"
)

// StreamConfig 流配置
type StreamConfig struct {
	// Window 接收滑动窗口大小（基因个数）
	// 默认值: 16
	Window int `json:"window"`

	// SendWindow 发送侧未确认流基因上限
	// 默认值: 16
	SendWindow int `json:"send_window"`

	// InitialReceiveStreamDelay 读等待初始轮询间隔
	// 默认值: 1ms
	InitialReceiveStreamDelay Duration `json:"initial_receive_stream_delay"`

	// MaxReceiveStreamDelay 读等待最大轮询间隔
	// 默认值: 64ms
	MaxReceiveStreamDelay Duration `json:"max_receive_stream_delay"`
}

// DefaultStreamConfig 返回默认流配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Window:                    16,
		SendWindow:                16,
		InitialReceiveStreamDelay: Duration(time.Millisecond),
		MaxReceiveStreamDelay:     Duration(64 * time.Millisecond),
	}
}

// Validate 验证流配置
func (c *StreamConfig) Validate() error {
	if c.Window <= 0 {
		return errors.New("stream window must be positive")
	}
	if c.SendWindow <= 0 {
		return errors.New("stream send_window must be positive")
	}
	if c.InitialReceiveStreamDelay <= 0 {
		return errors.New("initial_receive_stream_delay must be positive")
	}
	if c.MaxReceiveStreamDelay < c.InitialReceiveStreamDelay {
		return fmt.Errorf("max_receive_stream_delay (%s) below initial (%s)",
			c.MaxReceiveStreamDelay, c.InitialReceiveStreamDelay)
	}
	return nil
}
