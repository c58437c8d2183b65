package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/types"
)

func TestNewRegistry_CompilesDefaults(t *testing.T) {
	reg, err := NewRegistry(config.DefaultConfig())
	require.NoError(t, err)

	assert.NotEmpty(t, reg.Tier1Normalization)
	assert.NotEmpty(t, reg.Tier3Cluster)
	assert.NotEmpty(t, reg.Technical)
	assert.NotEmpty(t, reg.Entities)
	assert.NotEmpty(t, reg.Tools)
}

func TestNewRegistry_BadPattern(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entities[0].Pattern = `[unclosed`

	_, err := NewRegistry(cfg)
	require.Error(t, err)
	assert.Equal(t, types.PATTERN_COMPILE_FAILED, types.CodeOf(err))
}

func TestNormalize_PriorityOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Filtering.Tier1.NormalizationPatterns = []config.NormalizationPatternConfig{
		{Name: "number", Pattern: `\d+`, Replacement: "N", Priority: 20},
		{Name: "ip", Pattern: `(?:\d{1,3}\.){3}\d{1,3}`, Replacement: "IP", Priority: 10},
	}

	reg, err := NewRegistry(cfg)
	require.NoError(t, err)

	// The IP pattern runs first despite declaration order, so the
	// address collapses to one token instead of four numbers.
	got := Normalize("connect 10.0.0.1 port 8080", reg.Tier1Normalization)
	assert.Equal(t, "connect IP port N", got)
}

func TestDetectTool(t *testing.T) {
	reg, err := NewRegistry(config.DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		command string
		want    string
	}{
		{command: "nmap -sV 10.0.0.1", want: "nmap"},
		{command: "sudo nmap -p- 10.0.0.0/24", want: "nmap"},
		{command: "gobuster dir -u http://target -w words.txt", want: "gobuster"},
		{command: "hydra -l admin -P rockyou.txt ssh://10.0.0.1", want: "hydra"},
		{command: "ls -la", want: ""},
		{command: "echo nmap", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.DetectTool(tt.command))
		})
	}
}

func TestToolByName(t *testing.T) {
	reg, err := NewRegistry(config.DefaultConfig())
	require.NoError(t, err)

	tool, ok := reg.ToolByName("nmap")
	require.True(t, ok)
	assert.Contains(t, tool.EntityHints, "open_port")

	_, ok = reg.ToolByName("no-such-tool")
	assert.False(t, ok)
}
