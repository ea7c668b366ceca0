// Package main 提供 genet 回环压测命令
//
// 在进程内创建一条模拟链路（可配置丢包、限速、时延），两端各打开一个会话，
// 并发执行消息传输与流传输，结束后打印吞吐与统计。
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-genet"
	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/netsim"
	"github.com/dep2p/go-genet/internal/core/peerconn"
	logutil "github.com/dep2p/go-genet/internal/util/logger"
	"github.com/dep2p/go-genet/pkg/lib/log"
	"github.com/dep2p/go-genet/pkg/types"
)

var logger = log.Logger("genet/bench")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile = flag.String("config", "", "配置文件路径")
	preset     = flag.String("preset", "", "预设配置 (lan/wan/diagnostic)")
	algorithm  = flag.String("cc", "", "拥塞控制算法 (cubic/none)")

	messages    = flag.Int("messages", 32, "消息个数")
	messageSize = flag.Int("message-size", 64*1024, "每条消息字节数")
	streamSize  = flag.Int("stream-size", 8*1024*1024, "流传输字节数（0 表示跳过）")

	loss  = flag.Float64("loss", 0.01, "随机丢包率 [0,1)")
	rate  = flag.Float64("rate", 0, "每秒数据报上限（0 = 不限）")
	delay = flag.Duration("delay", 5*time.Millisecond, "单向时延")
	seed  = flag.Int64("seed", 1, "丢包随机种子")

	timeout  = flag.Duration("timeout", 2*time.Minute, "整体超时")
	logLevel = flag.String("log-level", "warn", "日志级别，支持按组件设置，如 core/pump=debug,warn")
	jsonOut  = flag.Bool("json", false, "以 JSON 输出统计")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	setupLogging(*logLevel)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	opts := []genet.Option{genet.WithConfig(cfg)}
	if *preset != "" {
		opts = append(opts, genet.WithPreset(*preset))
	}
	engine, err := genet.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动引擎失败: %w", err)
	}
	defer func() { _ = engine.Close() }()

	link := netsim.NewLink(cfg.Link, netsim.WithSeed(*seed))
	link.Start(ctx)
	defer func() { _ = link.Close() }()

	client := peerconn.New(cfg.Congestion, peerconn.WithID("client"))
	server := peerconn.New(cfg.Congestion, peerconn.WithID("server"))
	a, err := engine.Open(client, link.A(), genet.RoleDialer)
	if err != nil {
		return err
	}
	b, err := engine.Open(server, link.B(), genet.RoleListener)
	if err != nil {
		return err
	}
	link.A().SetReceiver(a.HandleDatagram)
	link.B().SetReceiver(b.HandleDatagram)

	start := time.Now()
	res, err := transfer(ctx, a, b, server)
	if err != nil {
		return err
	}
	res.Elapsed = time.Since(start)
	res.Link = [2]netsim.Stats{link.A().Stats(), link.B().Stats()}
	res.Engine = engine.Stats()
	return report(res)
}

// loadConfig 配置文件 → 环境变量 → 命令行参数
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if *algorithm != "" {
		cfg.Congestion.Algorithm = *algorithm
	}
	cfg.Link.LossRate = *loss
	cfg.Link.Rate = *rate
	cfg.Link.Delay = config.Duration(*delay)
	return cfg, cfg.Validate()
}

// setupLogging 安装按组件分级的日志 handler，GENET_LOG_LEVEL 优先于命令行参数
func setupLogging(level string) {
	if env := os.Getenv("GENET_LOG_LEVEL"); env != "" {
		level = env
	}
	cfg := logutil.ParseConfig(level, os.Getenv("GENET_LOG_FORMAT"), os.Getenv("GENET_LOG_ADD_SOURCE"))
	logutil.InstallDefault(cfg)
}

// ═══════════════════════════════════════════════════════════════════════════
// 传输
// ═══════════════════════════════════════════════════════════════════════════

// result 压测结果
type result struct {
	Messages      int           `json:"messages"`
	MessageBytes  int64         `json:"message_bytes"`
	StreamBytes   int64         `json:"stream_bytes"`
	Elapsed       time.Duration `json:"elapsed"`
	ThroughputMBs float64       `json:"throughput_mbs"`

	Link   [2]netsim.Stats `json:"link"`
	Engine genet.Stats     `json:"engine"`
}

func transfer(ctx context.Context, a, b *genet.Session, server *peerconn.Conn) (*result, error) {
	res := &result{}
	g, ctx := errgroup.WithContext(ctx)

	payload := bytes.Repeat([]byte{0x5A}, *messageSize)

	// 消息发送端
	g.Go(func() error {
		for i := 0; i < *messages; i++ {
			st, err := a.Submit(payload, 1, types.DataID(i))
			if err != nil {
				return fmt.Errorf("submit message %d: %w", i, err)
			}
			if o := st.Wait(ctx); o != types.OutcomeOK {
				return fmt.Errorf("message %d finished with %s", i, o)
			}
		}
		return nil
	})

	// 消息接收端
	g.Go(func() error {
		for i := 0; i < *messages; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-server.Inbox():
				if !ok {
					return fmt.Errorf("connection closed after %d messages", i)
				}
				if len(msg.Payload) != *messageSize {
					return fmt.Errorf("message %d: got %d bytes", msg.ID, len(msg.Payload))
				}
				res.Messages++
				res.MessageBytes += int64(len(msg.Payload))
			}
		}
		return nil
	})

	if *streamSize > 0 {
		out, err := a.OpenStreamSend(2, 0)
		if err != nil {
			return nil, err
		}
		in, err := b.OpenStreamReceive(out.ID(), 0)
		if err != nil {
			return nil, err
		}

		g.Go(func() error {
			chunk := make([]byte, 64*1024)
			for sent := 0; sent < *streamSize; {
				n := len(chunk)
				if rem := *streamSize - sent; rem < n {
					n = rem
				}
				if _, err := out.Write(ctx, chunk[:n]); err != nil {
					return fmt.Errorf("stream write: %w", err)
				}
				sent += n
			}
			return out.Close(ctx)
		})

		g.Go(func() error {
			buf := make([]byte, 64*1024)
			for {
				o, n := in.Read(ctx, buf)
				res.StreamBytes += int64(n)
				switch o {
				case types.OutcomeOK:
				case types.OutcomeComplete:
					if res.StreamBytes != int64(*streamSize) {
						return fmt.Errorf("stream ended after %d bytes", res.StreamBytes)
					}
					return nil
				default:
					return fmt.Errorf("stream read finished with %s", o)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 输出
// ═══════════════════════════════════════════════════════════════════════════

func report(res *result) error {
	total := float64(res.MessageBytes + res.StreamBytes)
	if secs := res.Elapsed.Seconds(); secs > 0 {
		res.ThroughputMBs = total / secs / (1 << 20)
	}
	logger.Info("压测完成", "elapsed", res.Elapsed, "throughput_mbs", res.ThroughputMBs)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("消息: %d 条, %d 字节\n", res.Messages, res.MessageBytes)
	fmt.Printf("流:   %d 字节\n", res.StreamBytes)
	fmt.Printf("耗时: %v, 吞吐 %.2f MiB/s\n", res.Elapsed.Round(time.Millisecond), res.ThroughputMBs)
	for i, name := range []string{"A→B", "B→A"} {
		s := res.Link[i]
		fmt.Printf("链路 %s: 发送 %d, 丢弃 %d, 投递 %d, 拒绝 %d\n", name, s.Sent, s.Dropped, s.Delivered, s.Rejected)
	}
	for _, s := range res.Engine.Sessions {
		cc := s.Congestion
		fmt.Printf("会话 %-6s cwnd=%.1f ssthresh=%.1f 发送=%d 重传=%d 确认=%d 刹车=%d 失败率=%.3f\n",
			s.Conn, cc.Cwnd, cc.Ssthresh, cc.Sent, cc.Resent, cc.Acked, cc.Brakes, cc.FailureRatio)
	}
	return nil
}
