package logger

import (
	"io"
	"log/slog"

	"github.com/dep2p/go-genet/pkg/lib/log"
)

// InstallDefault 根据配置安装默认 slog handler
//
// cfg 为 nil 时使用 ConfigFromEnv()。安装后所有 log.Logger(...) 创建的
// LazyLogger 按各自组件的级别输出。
func InstallDefault(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	l := slog.New(newComponentHandler(cfg))
	log.SetDefault(l)
	return l
}

// SetOutput 设置全局日志输出目标
//
// 已安装的 handler 通过 dynamicWriter 自动重定向到新的 writer。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

// Discard 返回一个丢弃所有日志的 Logger
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}
