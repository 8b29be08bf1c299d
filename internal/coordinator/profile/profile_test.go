package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func testProfile() *Profile {
	p := Default()
	p.Name = "fixed-rate"
	p.BrokerURL = "amqp://sut:5672/test.performance.queue"
	p.Duration = MustParseDuration("30s")
	p.Rate = 100
	p.ParallelCount = 50
	return p
}

func TestSettingsFor(t *testing.T) {
	p := testProfile()

	warmUp := p.SettingsFor(WarmUpPhase)
	assert.Equal(t, 30, warmUp.Rate)
	assert.Equal(t, 30, warmUp.ParallelCount)
	assert.Equal(t, "3s", warmUp.Duration.String())

	run := p.SettingsFor(RunPhase)
	assert.Equal(t, 100, run.Rate)
	assert.Equal(t, 50, run.ParallelCount)
	assert.Equal(t, "30s", run.Duration.String())
}

func TestSettingsFor_CountDurationIsBalancedDuringWarmUp(t *testing.T) {
	p := testProfile()
	p.Duration = MustParseDuration("60000")
	p.ParallelCount = 10

	warmUp := p.SettingsFor(WarmUpPhase)
	assert.Equal(t, 10, warmUp.ParallelCount)
	assert.Equal(t, "600", warmUp.Duration.String())
	assert.Equal(t, 20*time.Second, p.EstimatedCompletion(WarmUpPhase))
	assert.Equal(t, 600*time.Second, p.EstimatedCompletion(RunPhase))
}

func TestWarmUpRate(t *testing.T) {
	assert.Equal(t, 30, WarmUpRate(100, 30))
	assert.Equal(t, 1, WarmUpRate(3, 30))
	assert.Equal(t, 0, WarmUpRate(0, 30))
	assert.Equal(t, 100, WarmUpRate(100, 100))
}

func TestEndpoint(t *testing.T) {
	p := testProfile()
	p.Endpoints = map[string]string{"receiver": "amqp://other:5672/queue"}
	assert.Equal(t, "amqp://other:5672/queue", p.Endpoint(notes.RoleReceiver))
	assert.Equal(t, p.BrokerURL, p.Endpoint(notes.RoleSender))
}

func TestLoad(t *testing.T) {
	path := writeProfile(t, `
name: fixed-rate
brokerUrl: amqp://sut:5672/queue
duration: 1000
rate: 200
parallelCount: 2
maximumLatency: 500
warmUp:
  ratePercent: 50
  parallelCeiling: 1
sut:
  name: artemis
  version: 2.x
`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.True(t, p.Duration.IsCount())
	assert.Equal(t, int64(1000), p.Duration.Count())
	assert.Equal(t, "256", p.MessageSize)
	assert.Equal(t, 100, p.SettingsFor(WarmUpPhase).Rate)
	assert.Equal(t, 1, p.SettingsFor(WarmUpPhase).ParallelCount)

	info := p.ExecutionInfo(notes.NextTestNumber, 0)
	assert.Equal(t, "fixed-rate", info.Test.Name)
	require.NotNil(t, info.SutDetails)
	assert.Equal(t, notes.UnspecifiedSutID, info.SutDetails.ID)
	assert.Equal(t, "artemis", info.SutDetails.Name)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing duration":  "name: x\nbrokerUrl: amqp://sut\n",
		"bad duration":      "name: x\nbrokerUrl: amqp://sut\nduration: later\n",
		"missing broker":    "name: x\nduration: 30s\n",
		"unknown field":     "name: x\nbrokerUrl: amqp://sut\nduration: 30s\nspeed: 3\n",
		"bad endpoint role": "name: x\nbrokerUrl: amqp://sut\nduration: 30s\nendpoints:\n  juggler: amqp://x\n",
		"warm-up percent":   "name: x\nbrokerUrl: amqp://sut\nduration: 30s\nwarmUp:\n  ratePercent: 150\n",
		"no parallel count": "name: x\nbrokerUrl: amqp://sut\nduration: 30s\nparallelCount: 0\n",
		"negative rate":     "name: x\nbrokerUrl: amqp://sut\nduration: 30s\nrate: -1\n",
	}
	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeProfile(t, contents))
			assert.Error(t, err)
		})
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "warm-up", WarmUpPhase.String())
	assert.Equal(t, "run", RunPhase.String())
}
