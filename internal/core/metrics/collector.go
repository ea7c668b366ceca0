package metrics

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/pump"
	"github.com/dep2p/go-genet/internal/core/transmission"
	"github.com/dep2p/go-genet/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Source 提供待采集的传输管理器
type Source interface {
	Managers() []*transmission.Manager
}

// 确保实现接口
var (
	_ Source               = (*transmission.Factory)(nil)
	_ prometheus.Collector = (*Collector)(nil)
)

// ============================================================================
//                              Collector
// ============================================================================

// Collector Prometheus 采集器
//
// 每次 Collect 都从 Source 读取统计快照，不缓存历史。
type Collector struct {
	source    Source
	bandwidth *BandwidthCounter
	pump      *pump.Pump
	engine    string
	registry  *prometheus.Registry

	cwnd         *prometheus.Desc
	capacity     *prometheus.Desc
	ssthresh     *prometheus.Desc
	inflight     *prometheus.Desc
	failureRatio *prometheus.Desc
	slowStart    *prometheus.Desc
	pending      *prometheus.Desc
	ramaInFlight *prometheus.Desc
	transfers    *prometheus.Desc

	sent      *prometheus.Desc
	resent    *prometheus.Desc
	acked     *prometheus.Desc
	lost      *prometheus.Desc
	dropped   *prometheus.Desc
	brakes    *prometheus.Desc
	acks      *prometheus.Desc
	datagrams *prometheus.Desc
	malformed *prometheus.Desc

	bytes *prometheus.Desc

	pumpTicks   *prometheus.Desc
	pumpMembers *prometheus.Desc
	pumpEvicted *prometheus.Desc
}

// NewCollector 创建采集器，bandwidth 可为 nil
func NewCollector(cfg config.MetricsConfig, source Source, bandwidth *BandwidthCounter) *Collector {
	ns := cfg.Namespace
	if ns == "" {
		ns = config.DefaultMetricsConfig().Namespace
	}
	engine := uuid.NewString()
	constLabels := prometheus.Labels{"engine": engine}
	conn := []string{"conn"}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(ns, "transmission", name), help, labels, constLabels)
	}

	return &Collector{
		source:    source,
		bandwidth: bandwidth,
		engine:    engine,
		registry:  prometheus.NewRegistry(),

		cwnd:         desc("cwnd_genes", "Congestion window in genes.", conn...),
		capacity:     desc("capacity_genes", "Send capacity tokens available.", conn...),
		ssthresh:     desc("ssthresh_genes", "Slow start threshold in genes.", conn...),
		inflight:     desc("inflight_genes", "Genes sent and not yet acknowledged.", conn...),
		failureRatio: desc("failure_ratio", "Decayed ratio of resends to sends.", conn...),
		slowStart:    desc("slow_start", "1 while the controller is in slow start.", conn...),
		pending:      desc("pending_genes", "Genes queued and not yet sent.", conn...),
		ramaInFlight: desc("rama_inflight_genes", "Small-transmission genes in flight.", conn...),
		transfers:    desc("transmissions", "Open transmissions.", "conn", "direction"),

		sent:      desc("genes_sent_total", "Genes sent for the first time.", "conn", "scheduler"),
		resent:    desc("genes_resent_total", "Genes resent.", "conn", "scheduler"),
		acked:     desc("genes_acked_total", "Genes acknowledged.", conn...),
		lost:      desc("genes_lost_total", "Genes reported lost.", conn...),
		dropped:   desc("genes_dropped_total", "Queued genes dropped because no longer needed.", conn...),
		brakes:    desc("brakes_total", "Congestion brake activations.", conn...),
		acks:      desc("acks_total", "Acknowledgements sent.", "conn", "kind"),
		datagrams: desc("datagrams_received_total", "Datagrams handled.", conn...),
		malformed: desc("datagrams_malformed_total", "Datagrams rejected as malformed.", conn...),

		bytes: desc("bytes_total", "Datagram bytes by direction.", "conn", "direction"),

		pumpTicks:   desc("pump_ticks_total", "I/O pump ticks."),
		pumpMembers: desc("pump_members", "Managers driven by the pump."),
		pumpEvicted: desc("pump_evicted_total", "Managers evicted after their connection went inactive."),
	}
}

// SetPump 附加 I/O 泵统计
func (c *Collector) SetPump(p *pump.Pump) {
	c.pump = p
}

// Engine 采集器的 engine 标签值
func (c *Collector) Engine() string {
	return c.engine
}

// Registry 采集器自带的注册表，未注入外部 Registerer 时使用
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.cwnd, c.capacity, c.ssthresh, c.inflight, c.failureRatio, c.slowStart,
		c.pending, c.ramaInFlight, c.transfers,
		c.sent, c.resent, c.acked, c.lost, c.dropped, c.brakes, c.acks,
		c.datagrams, c.malformed, c.bytes,
		c.pumpTicks, c.pumpMembers, c.pumpEvicted,
	} {
		ch <- d
	}
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	seen := make(map[string]struct{})
	if c.source != nil {
		for _, m := range c.source.Managers() {
			s := m.Stats()
			if _, dup := seen[s.Conn]; dup {
				logger.Warn("重复的连接标识，跳过采集", "conn", s.Conn)
				continue
			}
			seen[s.Conn] = struct{}{}

			cc := s.Congestion
			gauge(c.cwnd, cc.Cwnd, s.Conn)
			gauge(c.capacity, cc.Capacity, s.Conn)
			gauge(c.ssthresh, cc.Ssthresh, s.Conn)
			gauge(c.inflight, float64(cc.InFlight), s.Conn)
			gauge(c.failureRatio, cc.FailureRatio, s.Conn)
			gauge(c.slowStart, boolFloat(cc.SlowStart), s.Conn)
			gauge(c.pending, float64(s.Pending), s.Conn)
			gauge(c.ramaInFlight, float64(s.RamaInFlight), s.Conn)
			gauge(c.transfers, float64(s.Sends), s.Conn, "send")
			gauge(c.transfers, float64(s.Receives), s.Conn, "receive")

			counter(c.sent, cc.Sent, s.Conn, "flow")
			counter(c.sent, s.RamaSent, s.Conn, "rama")
			counter(c.resent, cc.Resent, s.Conn, "flow")
			counter(c.resent, s.RamaResent, s.Conn, "rama")
			counter(c.acked, cc.Acked, s.Conn)
			counter(c.lost, cc.Lost, s.Conn)
			counter(c.dropped, s.Dropped, s.Conn)
			counter(c.brakes, cc.Brakes, s.Conn)
			counter(c.acks, s.Acks.Instant, s.Conn, "instant")
			counter(c.acks, s.Acks.Batched, s.Conn, "batched")
			counter(c.datagrams, s.Datagrams, s.Conn)
			counter(c.malformed, s.Malformed, s.Conn)
		}
	}

	if c.bandwidth != nil {
		for conn, bw := range c.bandwidth.GetBandwidthByConn() {
			counter(c.bytes, uint64(bw.TotalIn), conn, "in")
			counter(c.bytes, uint64(bw.TotalOut), conn, "out")
		}
	}

	if c.pump != nil {
		ps := c.pump.Stats()
		counter(c.pumpTicks, ps.Ticks)
		gauge(c.pumpMembers, float64(ps.Members))
		counter(c.pumpEvicted, ps.Evicted)
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
