package metrics

import (
	"time"
)

// Exit outcomes recorded by InstanceExited
const (
	OutcomeExited = "exited"
	OutcomeKilled = "killed"
)

// Termination modes recorded by TerminationDuration
const (
	TerminationGraceful = "graceful"
	TerminationForced   = "forced"
)

// Collector receives lifecycle events from launched broker instances
type Collector interface {
	// InstanceStarted records a broker host process that was started
	InstanceStarted()

	// StartFailed records a Start that did not produce a running process
	StartFailed(errorType string)

	// InstanceExited records the end of a running instance
	InstanceExited(outcome string)

	// TerminationDuration records how long a Stop took to bring the group down
	TerminationDuration(mode string, duration time.Duration)
}

type noopCollector struct{}

func (n *noopCollector) InstanceStarted()                                        {}
func (n *noopCollector) StartFailed(errorType string)                            {}
func (n *noopCollector) InstanceExited(outcome string)                           {}
func (n *noopCollector) TerminationDuration(mode string, duration time.Duration) {}

// NewNoopCollector creates a collector that records nothing
func NewNoopCollector() Collector {
	return &noopCollector{}
}
