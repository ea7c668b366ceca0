// Package metrics 提供传输层监控指标
//
// 包含两部分：
//   - 带宽统计：按连接记录数据报收发字节数与 60 秒滑动速率
//   - Prometheus 采集器：导出每个传输管理器的拥塞窗口、容量、在途数、
//     失败率以及发送/重传/确认/丢弃计数
//
// # 快速开始
//
//	bw := metrics.NewBandwidthCounter(nil)
//	sender := metrics.NewMeteredSender(link.A(), bw, conn.ID())
//	receive := metrics.MeterReceiver(manager.HandleDatagram, bw, conn.ID())
//
//	collector := metrics.NewCollector(cfg.Metrics, factory, bw)
//	registry := prometheus.NewRegistry()
//	registry.MustRegister(collector)
//
// # 指标命名
//
// 指标名为 <namespace>_transmission_<name>，namespace 来自
// config.MetricsConfig.Namespace（默认 genet）。每连接指标带 conn 标签，
// 所有指标带 engine 常量标签区分同进程内的多个引擎。
//
// # Fx 模块
//
// Module() 提供 *BandwidthCounter 与 *Collector，启动时把采集器注册到
// 注入的 prometheus.Registerer（未注入时使用 Collector 自带的注册表），
// 停止时注销。
package metrics
