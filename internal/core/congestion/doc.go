// Package congestion 实现每连接的拥塞控制策略
//
// Controller 是调度器使用的策略接口，连接建立时选定一次：
//
//   - Cubic: CUBIC 窗口增长 + Hystart 慢启动退出 + 失败率刹车 + 平滑发送容量
//   - NoCongestionControl: 每轮固定上限，用于诊断
//
// # 在途跟踪
//
// 已发送未确认的基因保存在按最近发送时间排序的链表中，
// 重传时移到尾部，因此从头部遍历时遇到第一个未到期的基因即可停止。
// 检测到丢包的基因进入无锁队列，在下一次重传扫描中优先处理。
//
// # 锁约定
//
// 每个 Controller 持有一把连接级锁，并且总是最内层的锁：
// 持锁时只收集需要重传的基因，发送在释放锁之后进行。
// 锁外发送前基因的数据帧被额外引用一次，避免发送期间被确认释放。
//
// # 刹车抑制
//
// 刹车后 BrakeSuppression × srtt 内不会再次刹车，
// 期间的失败仍然累计，窗口结束后按累计的失败率判断。
// 只有上一次发送晚于最近一次刹车的重传才计为失败。
package congestion
