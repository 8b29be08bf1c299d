package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := map[string]struct {
		input   string
		isCount bool
		time    time.Duration
		count   int64
		wantErr bool
	}{
		"seconds":        {input: "30s", time: 30 * time.Second},
		"hours, minutes": {input: "1h5m", time: 65 * time.Minute},
		"count":          {input: "1000", isCount: true, count: 1000},
		"zero count":     {input: "0", wantErr: true},
		"negative time":  {input: "-5s", wantErr: true},
		"garbage":        {input: "soon", wantErr: true},
		"empty":          {input: "", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d, err := ParseDuration(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.isCount, d.IsCount())
			assert.Equal(t, tc.time, d.Time())
			assert.Equal(t, tc.count, d.Count())
			assert.Equal(t, tc.input, d.String())
		})
	}
}

func TestWarmUp(t *testing.T) {
	tests := map[string]struct {
		duration string
		want     string
	}{
		"time":            {duration: "5m", want: "30s"},
		"time, truncated": {duration: "55s", want: "5s"},
		"short time":      {duration: "5s", want: "1s"},
		"count":           {duration: "1000", want: "100"},
		"small count":     {duration: "5", want: "1"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, MustParseDuration(tc.duration).WarmUp().String())
		})
	}
}

func TestBalanced(t *testing.T) {
	assert.Equal(t, "33", MustParseDuration("100").Balanced(3).String())
	assert.Equal(t, "1", MustParseDuration("2").Balanced(10).String())
	assert.Equal(t, "100", MustParseDuration("100").Balanced(1).String())
	assert.Equal(t, "30s", MustParseDuration("30s").Balanced(10).String())
}

func TestEstimatedCompletion(t *testing.T) {
	tests := map[string]struct {
		duration string
		rate     int
		want     time.Duration
	}{
		"time ignores rate":   {duration: "30s", rate: 100, want: 30 * time.Second},
		"count at rate":       {duration: "1000", rate: 100, want: 10 * time.Second},
		"count rounds up":     {duration: "1001", rate: 100, want: 11 * time.Second},
		"count, unbounded":    {duration: "1000", rate: 0, want: time.Minute},
		"time, unbounded too": {duration: "2m", rate: 0, want: 2 * time.Minute},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, MustParseDuration(tc.duration).EstimatedCompletion(tc.rate, time.Minute))
		})
	}
}

func TestTimeDuration_String(t *testing.T) {
	assert.Equal(t, "30s", TimeDuration(30*time.Second).String())
	assert.Equal(t, "1h5m", TimeDuration(65*time.Minute).String())
	assert.Equal(t, "1h0m0.5s", TimeDuration(time.Hour+500*time.Millisecond).String())
}
