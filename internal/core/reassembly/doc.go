// Package reassembly 实现接收端的基因重组
//
// ReceiveTransmission 在收到第一个基因时由其元数据确定模式，之后不再改变：
//
//   - Rama: 三个固定槽位，已知总数内的槽位全部到达即完成
//   - Block: 按位置索引的窗口，successive 指针越过连续前缀，到达总数即完成
//   - Stream: 大小为 W 的滑动窗口，由消费者推进；零长度的终止基因确定总数
//
// 重复基因幂等（先写入者生效）并重新确认；Stream 窗口之外的基因丢弃且不确认，
// 迫使发送端在窗口推进后超时重传；窗口之下的基因已被消费，重新确认。
//
// 所有对 Host 的回调都在锁外进行。
//
// # 流读取
//
// StreamHandle.Read 在数据未到达时以指数退避轮询
// （InitialDelay 到 MaxDelay），时钟可注入以便测试。
package reassembly
