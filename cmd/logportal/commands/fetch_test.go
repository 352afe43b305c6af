package commands

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawSink(t *testing.T) {
	var buf bytes.Buffer
	sink := &rawSink{out: &buf}

	sink.Status("Requesting latest log")
	for _, p := range []float64{0, 0.05, 0.1, 0.12, 0.5, 1, -1} {
		sink.Progress(p)
	}
	sink.Status("Log loaded: Log-5-1000 (0.9 kB/s)")

	assert.Equal(t, "Requesting latest log\n   10%\n   50%\n  100%\nLog loaded: Log-5-1000 (0.9 kB/s)\n", buf.String())
}

func TestFetchFlags(t *testing.T) {
	t.Cleanup(viper.Reset)
	cmd := Fetch("v1.0.0")
	require.NoError(t, cmd.ParseFlags([]string{"-l", "udpin:0.0.0.0:14550", "--compress", "-o", "/tmp/logs"}))
	require.NoError(t, cmd.PreRunE(cmd, nil))

	assert.Equal(t, "udpin:0.0.0.0:14550", viper.GetString("link"))
	assert.True(t, viper.GetBool("compress"))
	assert.Equal(t, "/tmp/logs", viper.GetString("output_dir"))
}

func TestConfigKeys(t *testing.T) {
	assert.NoError(t, validateConfigKey("stall_ms"))
	assert.Error(t, validateConfigKey("relay"))
}
