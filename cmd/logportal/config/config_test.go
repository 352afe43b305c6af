package config_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/SpatiumPortae/logportal/cmd/logportal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYamlRoundTrip(t *testing.T) {
	defaults := config.GetDefault()

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(defaults.Yaml())))

	var got config.Config
	require.NoError(t, v.Unmarshal(&got))
	assert.Equal(t, defaults, got)
}

func TestMapKeys(t *testing.T) {
	m := config.GetDefault().Map()
	for _, key := range []string{"link", "baud", "output_dir", "compress", "tick_ms", "stall_ms", "entry_retries", "data_retries", "monitor", "verbose", "tui_style"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, config.StyleRich, m["tui_style"])
}

func TestSession(t *testing.T) {
	t.Cleanup(viper.Reset)
	for k, v := range config.GetDefault().Map() {
		viper.SetDefault(k, v)
	}
	viper.Set("stall_ms", 400)
	viper.Set("target_system", 2)

	s := config.Session()
	assert.Equal(t, uint8(2), s.TargetSystem)
	assert.Equal(t, uint8(1), s.TargetComponent)
	assert.Equal(t, 400*time.Millisecond, s.StallTimeout)
	assert.Equal(t, 50*time.Millisecond, s.TickInterval)
	assert.Equal(t, 3, s.EntryRetries)
	assert.Equal(t, 5, s.DataRetries)

	assert.True(t, config.IsDefault("link"))
	assert.False(t, config.IsDefault("stall_ms"))
}
