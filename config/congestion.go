package config

import (
	"errors"
	"fmt"
	"time"
)

// 拥塞控制算法名称
const (
	// AlgorithmCubic CUBIC + Hystart + 失败率刹车
	AlgorithmCubic = "cubic"
	// AlgorithmNone 无拥塞控制（固定每轮上限，诊断/离线用）
	AlgorithmNone = "none"
)

// CongestionConfig 拥塞控制配置
//
// 窗口单位均为基因个数。
type CongestionConfig struct {
	// Algorithm 算法：cubic 或 none
	// 默认值: cubic
	Algorithm string `json:"algorithm"`

	// InitialCwnd 初始拥塞窗口
	// 默认值: 10
	InitialCwnd float64 `json:"initial_cwnd"`

	// MinCwnd 最小拥塞窗口
	// 默认值: 2
	MinCwnd float64 `json:"min_cwnd"`

	// MaxCwnd 最大拥塞窗口
	// 默认值: 4096
	MaxCwnd float64 `json:"max_cwnd"`

	// Beta 刹车时窗口缩减比例
	// 默认值: 0.2
	Beta float64 `json:"beta"`

	// BrakeThreshold 触发刹车的失败率
	// 默认值: 0.05
	BrakeThreshold float64 `json:"brake_threshold"`

	// BrakeSuppression 刹车后抑制再次刹车的时长（以平滑 RTT 为单位）
	// 默认值: 1.0
	BrakeSuppression float64 `json:"brake_suppression"`

	// CubicThreshold 每隔多少个节拍执行一次 CUBIC 更新
	// 默认值: 10
	CubicThreshold int `json:"cubic_threshold"`

	// HystartMinSamples Hystart 每轮最少 RTT 样本数
	// 默认值: 8
	HystartMinSamples int `json:"hystart_min_samples"`

	// HystartEtaMin / HystartEtaMax Hystart 延迟增量阈值范围
	// 默认值: 4ms / 16ms
	HystartEtaMin Duration `json:"hystart_eta_min"`
	HystartEtaMax Duration `json:"hystart_eta_max"`

	// BoostFactor 空闲后加速补充容量的倍数
	// 默认值: 1.5
	BoostFactor float64 `json:"boost_factor"`

	// NoCCCap 无拥塞控制模式下每轮最多发送的基因数
	// 默认值: 64
	NoCCCap int `json:"nocc_cap"`

	// InitialRtt 没有 RTT 样本时使用的估计值
	// 默认值: 100ms
	InitialRtt Duration `json:"initial_rtt"`

	// MinRto / MaxRto 重传超时范围
	// 默认值: 200ms / 10s
	MinRto Duration `json:"min_rto"`
	MaxRto Duration `json:"max_rto"`
}

// DefaultCongestionConfig 返回默认拥塞控制配置
func DefaultCongestionConfig() CongestionConfig {
	return CongestionConfig{
		Algorithm:         AlgorithmCubic,
		InitialCwnd:       10,
		MinCwnd:           2,
		MaxCwnd:           4096,
		Beta:              0.2,
		BrakeThreshold:    0.05,
		BrakeSuppression:  1.0,
		CubicThreshold:    10,
		HystartMinSamples: 8,
		HystartEtaMin:     Duration(4 * time.Millisecond),
		HystartEtaMax:     Duration(16 * time.Millisecond),
		BoostFactor:       1.5,
		NoCCCap:           64,
		InitialRtt:        Duration(100 * time.Millisecond),
		MinRto:            Duration(200 * time.Millisecond),
		MaxRto:            Duration(10 * time.Second),
	}
}

// Validate 验证拥塞控制配置
func (c *CongestionConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmCubic, AlgorithmNone:
	default:
		return fmt.Errorf("unknown congestion algorithm: %q", c.Algorithm)
	}
	if c.MinCwnd < 1 {
		return fmt.Errorf("min_cwnd must be at least 1, got %v", c.MinCwnd)
	}
	if c.MaxCwnd < c.MinCwnd {
		return fmt.Errorf("max_cwnd (%v) below min_cwnd (%v)", c.MaxCwnd, c.MinCwnd)
	}
	if c.InitialCwnd < c.MinCwnd || c.InitialCwnd > c.MaxCwnd {
		return fmt.Errorf("initial_cwnd %v outside [%v,%v]", c.InitialCwnd, c.MinCwnd, c.MaxCwnd)
	}
	if c.Beta <= 0 || c.Beta >= 1 {
		return fmt.Errorf("beta must be in (0,1), got %v", c.Beta)
	}
	if c.BrakeThreshold <= 0 || c.BrakeThreshold >= 1 {
		return fmt.Errorf("brake_threshold must be in (0,1), got %v", c.BrakeThreshold)
	}
	if c.BrakeSuppression < 0 {
		return errors.New("brake_suppression must not be negative")
	}
	if c.CubicThreshold <= 0 {
		return errors.New("cubic_threshold must be positive")
	}
	if c.HystartMinSamples <= 0 {
		return errors.New("hystart_min_samples must be positive")
	}
	if c.HystartEtaMin <= 0 || c.HystartEtaMax < c.HystartEtaMin {
		return fmt.Errorf("invalid hystart eta range [%s,%s]", c.HystartEtaMin, c.HystartEtaMax)
	}
	if c.BoostFactor < 1 {
		return fmt.Errorf("boost_factor must be at least 1, got %v", c.BoostFactor)
	}
	if c.NoCCCap <= 0 {
		return errors.New("nocc_cap must be positive")
	}
	if c.InitialRtt <= 0 {
		return errors.New("initial_rtt must be positive")
	}
	if c.MinRto <= 0 || c.MaxRto < c.MinRto {
		return fmt.Errorf("invalid rto range [%s,%s]", c.MinRto, c.MaxRto)
	}
	return nil
}
