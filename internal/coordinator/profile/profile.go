// Package profile describes what a test run asks of the peers: rate, parallelism, duration, message size and the
// scaled-down settings used while warming up.
package profile

import (
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/maestro-performance/maestro-go/internal/common/config"
	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

type Phase int

const (
	WarmUpPhase Phase = iota
	RunPhase
)

func (p Phase) String() string {
	if p == WarmUpPhase {
		return "warm-up"
	}
	return "run"
}

type WarmUp struct {
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`
	// RatePercent is the share of the target rate used during warm-up.
	RatePercent int `yaml:"ratePercent" mapstructure:"ratePercent" validate:"gte=1,lte=100"`
	// ParallelCeiling caps the number of connections per peer during warm-up.
	ParallelCeiling int `yaml:"parallelCeiling" mapstructure:"parallelCeiling" validate:"gte=1"`
}

type ExtensionPoint struct {
	Source  string `yaml:"source" mapstructure:"source"`
	Branch  string `yaml:"branch" mapstructure:"branch"`
	Command string `yaml:"command" mapstructure:"command"`
}

type Sut struct {
	ID        int32  `yaml:"id" mapstructure:"id"`
	Name      string `yaml:"name" mapstructure:"name" validate:"required"`
	Version   string `yaml:"version" mapstructure:"version"`
	JvmInfo   string `yaml:"jvmInfo" mapstructure:"jvmInfo"`
	OtherInfo string `yaml:"otherInfo" mapstructure:"otherInfo"`
	Tags      string `yaml:"tags" mapstructure:"tags"`
	LabName   string `yaml:"labName" mapstructure:"labName"`
	TestTags  string `yaml:"testTags" mapstructure:"testTags"`
}

// Profile is a fixed rate test profile.
type Profile struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	ScriptName  string `yaml:"scriptName" mapstructure:"scriptName"`
	Description string `yaml:"description" mapstructure:"description"`
	Comments    string `yaml:"comments" mapstructure:"comments"`

	BrokerURL string `yaml:"brokerUrl" mapstructure:"brokerUrl" validate:"required"`
	// Endpoints override BrokerURL per role name, for tests where senders and receivers use different brokers.
	Endpoints map[string]string `yaml:"endpoints" mapstructure:"endpoints"`

	Duration       TestDuration `yaml:"duration" mapstructure:"duration"`
	Rate           int          `yaml:"rate" mapstructure:"rate" validate:"gte=0"`
	ParallelCount  int          `yaml:"parallelCount" mapstructure:"parallelCount" validate:"gte=1"`
	MessageSize    string       `yaml:"messageSize" mapstructure:"messageSize" validate:"required"`
	VariableSize   bool         `yaml:"variableSize" mapstructure:"variableSize"`
	MaximumLatency int          `yaml:"maximumLatency" mapstructure:"maximumLatency" validate:"gte=0"`

	ManagementInterface string         `yaml:"managementInterface" mapstructure:"managementInterface"`
	InspectorName       string         `yaml:"inspectorName" mapstructure:"inspectorName"`
	ExtensionPoint      ExtensionPoint `yaml:"extensionPoint" mapstructure:"extensionPoint"`
	Sut                 *Sut           `yaml:"sut" mapstructure:"sut"`

	WarmUp                WarmUp        `yaml:"warmUp" mapstructure:"warmUp"`
	UnboundedRateEstimate time.Duration `yaml:"unboundedRateEstimate" mapstructure:"unboundedRateEstimate"`
}

// Default returns a profile with every optional setting filled in.
func Default() *Profile {
	return &Profile{
		ParallelCount: 1,
		MessageSize:   "256",
		WarmUp: WarmUp{
			RatePercent:     30,
			ParallelCeiling: 30,
		},
		UnboundedRateEstimate: DefaultUnboundedRateEstimate,
	}
}

// Load reads a yaml profile on top of Default and validates it.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading test profile %s", path)
	}
	p := Default()
	if err := yaml.UnmarshalStrict(data, p); err != nil {
		return nil, errors.Wrapf(err, "parsing test profile %s", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if err := config.Validate(p); err != nil {
		return err
	}
	if p.Duration.IsZero() {
		return errors.WithStack(&maestroerrors.ErrInvalidArgument{Name: "duration", Message: "a test duration is required"})
	}
	for role := range p.Endpoints {
		if _, err := notes.ParseRole(role); err != nil {
			return errors.WithMessage(err, "invalid endpoint")
		}
	}
	return nil
}

// Settings are the values applied to the peers for one phase.
type Settings struct {
	Rate          int
	ParallelCount int
	Duration      TestDuration
}

// SettingsFor returns the settings of phase. Warm-up runs at RatePercent of the rate, with at most
// ParallelCeiling connections, for a tenth of the duration spread across those connections.
func (p *Profile) SettingsFor(phase Phase) Settings {
	if phase == RunPhase {
		return Settings{Rate: p.Rate, ParallelCount: p.ParallelCount, Duration: p.Duration}
	}
	parallelCount := p.ParallelCount
	if parallelCount > p.WarmUp.ParallelCeiling {
		parallelCount = p.WarmUp.ParallelCeiling
	}
	return Settings{
		Rate:          WarmUpRate(p.Rate, p.WarmUp.RatePercent),
		ParallelCount: parallelCount,
		Duration:      p.Duration.WarmUp().Balanced(parallelCount),
	}
}

func WarmUpRate(rate, percent int) int {
	return int(math.Round(float64(rate) * float64(percent) / 100))
}

// EstimatedCompletion is how long phase is expected to run.
func (p *Profile) EstimatedCompletion(phase Phase) time.Duration {
	s := p.SettingsFor(phase)
	return s.Duration.EstimatedCompletion(s.Rate, p.UnboundedRateEstimate)
}

// Endpoint returns the broker URL peers with role should use to exchange test messages.
func (p *Profile) Endpoint(role notes.Role) string {
	if url, ok := p.Endpoints[role.String()]; ok && url != "" {
		return url
	}
	return p.BrokerURL
}

// ExecutionInfo is announced to the peers when a test starts.
func (p *Profile) ExecutionInfo(testNumber, iteration int32) notes.TestExecutionInfo {
	info := notes.TestExecutionInfo{
		Test: notes.Test{
			TestNumber: testNumber,
			Iteration:  iteration,
			Name:       p.Name,
			ScriptName: p.ScriptName,
			Details:    notes.TestDetails{Description: p.Description, Comments: p.Comments},
		},
	}
	if p.Sut != nil {
		id := p.Sut.ID
		if id == 0 {
			id = notes.UnspecifiedSutID
		}
		info.SutDetails = &notes.SutDetails{
			ID:         id,
			Name:       p.Sut.Name,
			Version:    p.Sut.Version,
			JvmVersion: p.Sut.JvmInfo,
			OtherInfo:  p.Sut.OtherInfo,
			Tags:       p.Sut.Tags,
			LabName:    p.Sut.LabName,
			TestTags:   p.Sut.TestTags,
		}
	}
	return info
}
