// Package transmission 实现每连接的传输管理
//
// Manager 是连接上层与核心之间的边界：
//
//   - 应用侧: Submit / OpenStreamSend 发送，AwaitReceive / OpenStreamReceive 接收
//   - I/O 泵: Process 处理超时与拥塞节拍，ProcessSend 发送新基因，FlushAcks 刷新确认
//   - 数据报: HandleDatagram 解码数据帧与确认帧
//   - 反馈: OnAckReceived / OnLossDetected / OnRttSample
//
// 基因少于等于 3 个的消息走 Rama 调度（绕过拥塞控制），
// 其余消息与流走拥塞控制下的 FlowControl。
//
// 主动拨号方分配奇数传输 ID，被动接受方分配偶数 ID。
// 已结束的接收传输 ID 记录在有界的 LRU 中，迟到的基因确认后丢弃。
//
// # Fx 模块
//
//	app := fx.New(
//	    config.Module(cfg),
//	    transmission.Module(),
//	    fx.Invoke(func(f *transmission.Factory) {
//	        m, err := f.Open(conn, sender, transmission.RoleDialer)
//	    }),
//	)
package transmission
