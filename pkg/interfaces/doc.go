// Package interfaces 定义传输核心与外部连接层之间的接口
//
// 核心不拥有套接字，也不负责加密或连接建立。连接层实现以下接口，
// 核心通过它们发送数据报、读取 RTT 估计并投递无人认领的消息：
//
//   - NetSender:   原始数据报发送端
//   - Connection:  RTT 估计、活跃状态与消息投递
//   - RttObserver: 可选，接收核心测得的 RTT 样本
//   - AckSink:     确认子系统（即时 / 批量）
//
// 进程内的参考实现见 internal/core/peerconn 与 internal/core/netsim。
package interfaces
