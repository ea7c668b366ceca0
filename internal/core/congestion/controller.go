package congestion

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
)

var logger = log.Logger("core/congestion")

// Controller 拥塞控制策略
//
// 每个连接构造时选定一个实现。所有方法并发安全。
type Controller interface {
	// AddInFlight 记录新基因的首次发送
	//
	// 基因的数据帧被额外引用一次，调用方在锁外发送后 Release。
	AddInFlight(g *gene.Gene)

	// RemoveInFlight 基因被确认
	//
	// removed 为 false 表示基因不在途（已被丢弃或重复确认）。
	// rtt 为 Karn 规则下的样本，0 表示无样本。
	RemoveInFlight(g *gene.Gene) (rtt time.Duration, removed bool)

	// LossDetected 外部检测到丢包，同一基因只入队一次
	LossDetected(g *gene.Gene)

	// AddRtt 慢启动 RTT 样本（微秒）
	AddRtt(mics int64)

	// Budget 当前允许发送的新基因数
	Budget() int

	// OnCapacityLimited 发送方因容量不足而停止
	OnCapacityLimited()

	// Resend 重传到期与丢包基因，返回重传数量
	Resend(sender interfaces.NetSender) int

	// Process 每个 I/O 轮次调用一次
	//
	// 连接不再活跃或已关闭时返回 false，调用方应停止调度该连接。
	Process(sender interfaces.NetSender, elapsed time.Duration) bool

	// InFlight 在途基因数
	InFlight() int

	// Snapshot 统计快照
	Snapshot() Snapshot

	// Close 释放全部在途基因，之后 Process 返回 false
	Close()
}

// Snapshot 拥塞控制状态快照
type Snapshot struct {
	Algorithm    string
	Cwnd         float64
	Capacity     float64
	Ssthresh     float64
	LastMax      float64
	SlowStart    bool
	InFlight     int
	FailureRatio float64

	Sent   uint64
	Resent uint64
	Acked  uint64
	Lost   uint64
	Brakes uint64
}

// New 按配置创建 Controller
func New(cfg config.CongestionConfig, conn interfaces.Connection, clk clock.Clock) Controller {
	if clk == nil {
		clk = clock.New()
	}
	switch cfg.Algorithm {
	case config.AlgorithmNone:
		return NewNoCongestionControl(cfg, conn, clk)
	case config.AlgorithmCubic, "":
		return NewCubic(cfg, conn, clk)
	default:
		logger.Warn("未知拥塞算法，使用 cubic", "algorithm", cfg.Algorithm)
		return NewCubic(cfg, conn, clk)
	}
}

// timing 从连接读取 RTT 估计，0 视为无样本
type timing struct {
	srtt   time.Duration
	minRtt time.Duration
	rto    time.Duration
}

func readTiming(cfg *config.CongestionConfig, conn interfaces.Connection) timing {
	t := timing{
		srtt:   conn.SmoothedRtt(),
		minRtt: conn.MinRtt(),
		rto:    conn.RetransmissionTimeout(),
	}
	if t.srtt <= 0 {
		t.srtt = cfg.InitialRtt.Duration()
	}
	if t.minRtt <= 0 {
		t.minRtt = t.srtt
	}
	if t.rto <= 0 {
		t.rto = 3 * t.srtt
	}
	if t.rto < cfg.MinRto.Duration() {
		t.rto = cfg.MinRto.Duration()
	}
	if t.rto > cfg.MaxRto.Duration() {
		t.rto = cfg.MaxRto.Duration()
	}
	return t
}

// RetransmissionTimeout 连接当前的重传超时，夹到 [MinRto, MaxRto]
func RetransmissionTimeout(cfg *config.CongestionConfig, conn interfaces.Connection) time.Duration {
	return readTiming(cfg, conn).rto
}

// sendAll 在锁外发送已 Retain 的基因并释放引用
func sendAll(sender interfaces.NetSender, due []*gene.Gene) {
	for _, g := range due {
		if err := g.Send(sender); err != nil {
			logger.Debug("重传发送失败", "gene", g.ID(), "error", err)
		}
		g.Release()
	}
}
