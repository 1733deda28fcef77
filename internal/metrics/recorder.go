package metrics

import "time"

// BuildOutcome enumerates the mutually exclusive per-package outcomes.
type BuildOutcome string

const (
	OutcomeSuccessful BuildOutcome = "successful"
	OutcomeFailed     BuildOutcome = "failed"
	OutcomeNonLibrary BuildOutcome = "non_library"
)

// Recorder defines observability hooks for package builds.
type Recorder interface {
	IncBuildOutcome(outcome BuildOutcome)
	ObserveBuildDuration(d time.Duration)
	ObserveTargetBuild(target string, d time.Duration, success bool)
	IncToolchainUpdate(versionChanged bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncBuildOutcome(BuildOutcome)                   {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)             {}
func (NoopRecorder) ObserveTargetBuild(string, time.Duration, bool) {}
func (NoopRecorder) IncToolchainUpdate(bool)                        {}
