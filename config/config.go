// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//   - 支持预设配置（lan/wan/diagnostic）
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Congestion.MaxCwnd = 8192
//	cfg.Stream.Window = 64
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

// Config 是 genet 的完整配置结构
//
// 配置按照功能模块组织：
//   - Transmission: 基因切分、传输数量上限、确认策略
//   - Congestion: 拥塞控制算法与 CUBIC 参数
//   - Stream: 流式接收窗口与轮询退避
//   - Pump: I/O 泵节拍
//   - Link: 模拟链路（测试与压测）
//   - Metrics: Prometheus 指标
type Config struct {
	// Transmission 传输配置
	Transmission TransmissionConfig `json:"transmission"`

	// Congestion 拥塞控制配置
	Congestion CongestionConfig `json:"congestion"`

	// Stream 流配置
	Stream StreamConfig `json:"stream"`

	// Pump I/O 泵配置
	Pump PumpConfig `json:"pump"`

	// Link 模拟链路配置
	Link LinkConfig `json:"link"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Transmission: DefaultTransmissionConfig(),
		Congestion:   DefaultCongestionConfig(),
		Stream:       DefaultStreamConfig(),
		Pump:         DefaultPumpConfig(),
		Link:         DefaultLinkConfig(),
		Metrics:      DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := c.Transmission.Validate(); err != nil {
		return err
	}
	if err := c.Congestion.Validate(); err != nil {
		return err
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if err := c.Pump.Validate(); err != nil {
		return err
	}
	if err := c.Link.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}
