package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dep2p/go-genet/config"
)

// applyEnvOverrides 应用 GENET_* 环境变量
//
// 支持的变量：
//   - GENET_CC: 拥塞控制算法
//   - GENET_GENE_SIZE: 基因大小
//   - GENET_STREAM_WINDOW: 流接收与发送窗口
//   - GENET_PUMP_INTERVAL: I/O 泵节拍（如 500us）
func applyEnvOverrides(cfg *config.Config) error {
	if v := os.Getenv("GENET_CC"); v != "" {
		cfg.Congestion.Algorithm = v
	}
	if v := os.Getenv("GENET_GENE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GENET_GENE_SIZE: %w", err)
		}
		cfg.Transmission.GeneSize = n
	}
	if v := os.Getenv("GENET_STREAM_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GENET_STREAM_WINDOW: %w", err)
		}
		cfg.Stream.Window = n
		cfg.Stream.SendWindow = n
	}
	if v := os.Getenv("GENET_PUMP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GENET_PUMP_INTERVAL: %w", err)
		}
		cfg.Pump.Interval = config.Duration(d)
	}
	return nil
}
