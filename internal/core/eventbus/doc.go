// Package eventbus 实现进程内事件总线
//
// 引擎通过总线发布会话与传输事件（见 events.go）：
//
//	sub, _ := bus.Subscribe(new(eventbus.EvtTransmissionFinished), eventbus.BufSize(64))
//	defer sub.Close()
//
//	for evt := range sub.Out() {
//	    e := evt.(eventbus.EvtTransmissionFinished)
//	    ...
//	}
//
// 发射从不阻塞，订阅者缓冲区满时丢弃事件并计数（Bus.Dropped）。
// Stateful 发射器保留最后一个事件，新订阅者立即收到。
package eventbus
