package metrics

import (
	"time"

	"github.com/dep2p/go-genet/pkg/interfaces"
)

// Reporter 提供记录和检索带宽指标的方法
type Reporter interface {
	// LogSent 记录连接发出的数据报大小
	LogSent(conn string, size int64)

	// LogRecv 记录连接收到的数据报大小
	LogRecv(conn string, size int64)

	// GetBandwidthForConn 获取连接带宽统计
	GetBandwidthForConn(conn string) Stats

	// GetBandwidthTotals 获取总带宽统计
	GetBandwidthTotals() Stats

	// GetBandwidthByConn 获取所有连接带宽统计
	GetBandwidthByConn() map[string]Stats

	// Reset 重置所有统计
	Reset()

	// TrimIdle 清理空闲统计
	TrimIdle(since time.Time)
}

// 确保实现接口
var _ Reporter = (*BandwidthCounter)(nil)

// ============================================================================
//                              计量包装
// ============================================================================

// 确保实现接口
var _ interfaces.NetSender = (*MeteredSender)(nil)

// MeteredSender 记录成功发出字节数的 NetSender 包装
type MeteredSender struct {
	interfaces.NetSender
	reporter Reporter
	conn     string
}

// NewMeteredSender 包装 sender
func NewMeteredSender(sender interfaces.NetSender, reporter Reporter, conn string) *MeteredSender {
	return &MeteredSender{NetSender: sender, reporter: reporter, conn: conn}
}

// Send 发送并计量
func (s *MeteredSender) Send(datagram []byte) error {
	if err := s.NetSender.Send(datagram); err != nil {
		return err
	}
	s.reporter.LogSent(s.conn, int64(len(datagram)))
	return nil
}

// MeterReceiver 包装数据报接收函数，记录收到的字节数
func MeterReceiver(fn func([]byte) error, reporter Reporter, conn string) func([]byte) error {
	return func(b []byte) error {
		reporter.LogRecv(conn, int64(len(b)))
		return fn(b)
	}
}
