// Package mocks 提供统一的测试 Mock 实现
//
// 新测试应优先使用这些统一 Mock，以保持一致性和可维护性。
//
// # 核心 Mock
//
//   - MockConnection: 模拟 interfaces.Connection，可调 RTT 估计、活跃标志，记录投递的消息
//   - MockSender: 模拟 interfaces.NetSender，记录发送的数据报
//
// # 设计原则
//
// 1. 函数式注入: 每个 Mock 都支持通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 关键 Mock 记录调用历史，便于验证测试行为
//
// # 使用示例
//
//	conn := mocks.NewMockConnection("c1")
//	sender := &mocks.MockSender{
//	    SendFunc: func(b []byte) error { return errors.New("buffer full") },
//	}
//	ctrl := congestion.New(cfg.Congestion, conn, clock.NewMock())
package mocks
