package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/patterns"
)

func newTestRegistry(t *testing.T) *patterns.Registry {
	t.Helper()
	registry, err := patterns.NewRegistry(config.DefaultConfig())
	require.NoError(t, err)
	return registry
}

func TestTier1_KeepsUpToMaxOccurrences(t *testing.T) {
	f := NewTier1Filter(newTestRegistry(t), 3)

	line := "Connection refused"
	for i := 0; i < 3; i++ {
		require.True(t, f.ProcessLine(line), "occurrence %d should pass", i+1)
	}
	require.False(t, f.ProcessLine(line))
	require.False(t, f.ProcessLine(line))
}

func TestTier1_NormalizationCollapsesVolatileTokens(t *testing.T) {
	f := NewTier1Filter(newTestRegistry(t), 2)

	// Different IPs and ports normalize to the same pattern.
	require.True(t, f.ProcessLine("connect to 10.0.0.1 port 8080"))
	require.True(t, f.ProcessLine("connect to 192.168.1.5 port 443"))
	require.False(t, f.ProcessLine("connect to 172.16.0.9 port 22"))
}

func TestTier1_DistinctPatternsTrackedSeparately(t *testing.T) {
	f := NewTier1Filter(newTestRegistry(t), 1)

	require.True(t, f.ProcessLine("first kind of line"))
	require.True(t, f.ProcessLine("a totally different message"))
	require.False(t, f.ProcessLine("first kind of line"))
	require.False(t, f.ProcessLine("a totally different message"))
}

func TestTier1_FilterLines(t *testing.T) {
	f := NewTier1Filter(newTestRegistry(t), 1)

	kept := f.FilterLines([]string{"alpha", "beta", "alpha", "gamma", "beta"})
	require.Equal(t, []string{"alpha", "beta", "gamma"}, kept)
}

func TestTier1_Reset(t *testing.T) {
	f := NewTier1Filter(newTestRegistry(t), 1)

	require.True(t, f.ProcessLine("hello"))
	require.False(t, f.ProcessLine("hello"))

	f.Reset()

	require.True(t, f.ProcessLine("hello"))
	stats := f.Stats()
	require.Equal(t, 1, stats.UniquePatterns)
	require.Equal(t, uint64(1), stats.TotalOccurrences)
}

func TestTier1_Stats(t *testing.T) {
	f := NewTier1Filter(newTestRegistry(t), 2)

	f.FilterLines([]string{"one", "one", "one", "two"})

	stats := f.Stats()
	require.Equal(t, 2, stats.UniquePatterns)
	require.Equal(t, uint64(4), stats.TotalOccurrences)
}
