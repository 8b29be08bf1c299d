package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(viper.New(), writeConfig(t, `
strategy:
  peers:
    - role: sender
      name: sender
      host: h1
`))
	require.NoError(t, err)
	assert.Equal(t, "mqtt://localhost:1883", c.Broker.URL)
	assert.Equal(t, 5*time.Second, c.Broker.SuperviseInterval)
	assert.Equal(t, StaticStrategy, c.Strategy.Type)
	assert.Equal(t, 10*time.Second, c.Slack)
	assert.Equal(t, 10*time.Second, c.ReplyTimeout)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, []notes.PeerInfo{{Role: notes.RoleSender, Name: "sender", Host: "h1"}}, c.Strategy.Peers)
}

func TestLoad_Overrides(t *testing.T) {
	c, err := Load(viper.New(), writeConfig(t, `
broker:
  url: nats://broker:4222
strategy:
  type: balanced
  discoveryWindow: 2s
slack: 30s
statsInterval: 0s
reports:
  enabled: false
metrics:
  port: 9090
`))
	require.NoError(t, err)
	assert.Equal(t, "nats://broker:4222", c.Broker.URL)
	assert.Equal(t, BalancedStrategy, c.Strategy.Type)
	assert.Equal(t, 2*time.Second, c.Strategy.DiscoveryWindow)
	assert.Equal(t, 30*time.Second, c.Slack)
	assert.Zero(t, c.StatsInterval)
	assert.False(t, c.Reports.Enabled)
	assert.Equal(t, uint16(9090), c.Metrics.Port)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("MAESTRO_BROKER_URL", "mem://env")
	c, err := Load(viper.New(), writeConfig(t, "strategy:\n  type: discovery\n"))
	require.NoError(t, err)
	assert.Equal(t, "mem://env", c.Broker.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown strategy":     "strategy:\n  type: random\n",
		"static without peers": "strategy:\n  type: static\n",
		"zero reply timeout":   "strategy:\n  type: discovery\nreplyTimeout: 0s\n",
		"negative slack":       "strategy:\n  type: discovery\nslack: -1s\n",
		"reports without dir":  "strategy:\n  type: discovery\nreports:\n  dir: \"\"\n",
	}
	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, contents))
			assert.Error(t, err)
		})
	}
}
