// Package limits holds the per-package resource ceilings applied to sandboxed builds.
package limits

import "time"

const (
	DefaultMemory     uint64 = 3 * 1024 * 1024 * 1024
	DefaultTimeout           = 15 * time.Minute
	DefaultTargets           = 10
	DefaultMaxLogSize        = 100 * 1024
)

// Limits is immutable once looked up for a package.
type Limits struct {
	Memory     uint64        // bytes
	CPUs       float64       // zero means no CPU ceiling
	Networking bool          // network access inside the sandbox
	Timeout    time.Duration // hard wall-clock ceiling per sandboxed invocation
	MaxLogSize int           // bytes of build log retained
	Targets    int           // additional targets attempted after the default one
}

// Default returns the limits applied to packages without overrides.
func Default() Limits {
	return Limits{
		Memory:     DefaultMemory,
		Networking: false,
		Timeout:    DefaultTimeout,
		MaxLogSize: DefaultMaxLogSize,
		Targets:    DefaultTargets,
	}
}

// Overrides are per-package adjustments stored by operators. Nil fields keep the default.
type Overrides struct {
	Memory  *uint64
	Timeout *time.Duration
	Targets *int
}

// Apply returns l with the non-nil overrides applied.
func (l Limits) Apply(o Overrides) Limits {
	if o.Memory != nil {
		l.Memory = *o.Memory
	}
	if o.Timeout != nil {
		l.Timeout = *o.Timeout
	}
	if o.Targets != nil {
		l.Targets = *o.Targets
	}
	return l
}

// WithCPUs returns l with the global CPU ceiling applied.
func (l Limits) WithCPUs(cpus int) Limits {
	if cpus > 0 {
		l.CPUs = float64(cpus)
	}
	return l
}
