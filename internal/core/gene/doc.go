// Package gene 实现基因（传输的最小单位）及其线上编码
//
// 一个应用消息被切分为若干固定容量的基因。第 0 个基因的负载前缀
// 为 12 字节数据头（dataKind 4 字节 + dataId 8 字节），其后的基因只携带负载。
//
// # 模式
//
//   - Rama: 不超过 3 个基因，接收端使用固定槽位
//   - Block: 超过 3 个基因，总数已知
//   - Stream: 总数未知，以零长度的终止基因结束
//
// # 帧格式
//
// 数据帧（大端）：
//
//	+------+-----------+----------+------+-----------+---------+
//	| kind | tid (u32) | pos(u32) | mode | total i32 | payload |
//	+------+-----------+----------+------+-----------+---------+
//
// 确认帧：
//
//	+------+-------------+-------------------------------+
//	| kind | count (u16) | (tid u32, pos u32) * count    |
//	+------+-------------+-------------------------------+
//
// # 发送队列
//
// Queue 是多生产者单消费者的无锁队列，应用协程并发入队，
// 只有 I/O 泵在连接锁内出队。
package gene
