package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "congestion": {"algorithm": "cubic", "max_cwnd": 8192},
//	  "stream": {"window": 64, "max_receive_stream_delay": "32ms"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载并验证配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ToJSON 将配置序列化为带缩进的 JSON
func ToJSON(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "lan": 低时延局域网，更大窗口和更快的轮询
//   - "wan": 广域网默认值
//   - "diagnostic": 关闭拥塞控制，固定每轮上限
func ApplyPreset(cfg *Config, presetName string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch presetName {
	case "lan":
		applyLANPreset(cfg)
	case "wan", "":
		// 默认配置即为广域网配置
	case "diagnostic":
		applyDiagnosticPreset(cfg)
	default:
		return fmt.Errorf("unknown preset: %s", presetName)
	}
	return nil
}

// applyLANPreset 局域网预设
//
// 局域网 RTT 在毫秒级，重传超时下限和 Hystart 阈值相应收紧。
func applyLANPreset(cfg *Config) {
	cfg.Congestion.InitialCwnd = 32
	cfg.Congestion.MaxCwnd = 16384
	cfg.Congestion.InitialRtt = Duration(5 * time.Millisecond)
	cfg.Congestion.MinRto = Duration(20 * time.Millisecond)
	cfg.Stream.Window = 64
	cfg.Stream.SendWindow = 64
	cfg.Stream.MaxReceiveStreamDelay = Duration(8 * time.Millisecond)
}

// applyDiagnosticPreset 诊断预设
func applyDiagnosticPreset(cfg *Config) {
	cfg.Congestion.Algorithm = AlgorithmNone
	cfg.Metrics.Enabled = false
}

// CloneConfig 克隆配置
//
// 所有子配置都是值类型，浅拷贝即深拷贝。
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	return &cloned
}
