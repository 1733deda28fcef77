package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	l := Default()
	assert.Equal(t, uint64(3*1024*1024*1024), l.Memory)
	assert.Equal(t, 15*time.Minute, l.Timeout)
	assert.Equal(t, 10, l.Targets)
	assert.Equal(t, 100*1024, l.MaxLogSize)
	assert.False(t, l.Networking)
	assert.Zero(t, l.CPUs)
}

func TestApplyOverrides(t *testing.T) {
	mem := uint64(6 << 30)
	timeout := time.Hour
	l := Default().Apply(Overrides{Memory: &mem, Timeout: &timeout})

	assert.Equal(t, mem, l.Memory)
	assert.Equal(t, time.Hour, l.Timeout)
	assert.Equal(t, DefaultTargets, l.Targets, "unset override keeps default")
}

func TestWithCPUs(t *testing.T) {
	assert.Equal(t, 2.0, Default().WithCPUs(2).CPUs)
	assert.Zero(t, Default().WithCPUs(0).CPUs)
}
