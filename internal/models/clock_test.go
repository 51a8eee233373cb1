package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:45")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 9, Minute: 45}, c)
	assert.Equal(t, "09:45", c.String())
	assert.Equal(t, "0945", c.HHMM())

	for _, bad := range []string{"25:00", "9.45", "", "noon"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, "ParseClock(%q)", bad)
	}
}

func TestClockReachedAndMatches(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cutoff := MustParseClock("13:00")

	assert.False(t, cutoff.Reached(time.Date(2025, 12, 10, 12, 59, 59, 0, ny)))
	assert.True(t, cutoff.Reached(time.Date(2025, 12, 10, 13, 0, 0, 0, ny)))
	assert.True(t, cutoff.Reached(time.Date(2025, 12, 10, 15, 30, 0, 0, ny)))

	assert.True(t, cutoff.Matches(time.Date(2025, 12, 10, 13, 0, 42, 0, ny)))
	assert.False(t, cutoff.Matches(time.Date(2025, 12, 10, 13, 1, 0, 0, ny)))
}

func TestClockYAML(t *testing.T) {
	var out struct {
		Times []Clock `yaml:"times"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("times: [\"09:45\", \"10:30\"]\n"), &out))
	assert.Equal(t, []Clock{{9, 45}, {10, 30}}, out.Times)

	err := yaml.Unmarshal([]byte("times: [\"later\"]\n"), &out)
	assert.Error(t, err)
}
