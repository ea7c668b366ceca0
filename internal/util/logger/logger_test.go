package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-genet/pkg/lib/log"
)

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig("core/congestion=debug, core=warn,error", "json", "1")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.True(t, cfg.AddSource)

	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("core/congestion"))
	// 前缀回退
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("core/pump"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("cmd/bench"))
}

func TestParseConfig_IgnoresGarbage(t *testing.T) {
	cfg := ParseConfig("loud,core=chatty", "", "")
	assert.Equal(t, slog.LevelInfo, cfg.DefaultLevel)
	assert.Empty(t, cfg.SubsystemLevels)
	assert.Equal(t, FormatText, cfg.Format)
}

func TestInstallDefault_ComponentLevels(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	InstallDefault(ParseConfig("core/congestion=debug,info", "", ""))

	log.Logger("core/congestion").Debug("brake", "cwnd", 8)
	log.Logger("core/pump").Debug("tick")
	log.Logger("core/pump").Info("started", "interval", "1ms")

	out := buf.String()
	assert.Contains(t, out, "brake")
	assert.Contains(t, out, "component=core/congestion")
	assert.NotContains(t, out, "tick")
	assert.Contains(t, out, "started")
}
