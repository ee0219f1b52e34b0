package launcher

import (
	"os"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/environ"
	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"
	"github.com/core-tools/hsu-rmq-launcher/pkg/metrics"
	"github.com/core-tools/hsu-rmq-launcher/pkg/ports"
)

const (
	DefaultStopTimeout = 10 * time.Second
	DefaultKillTimeout = 5 * time.Second
)

// Options configures a Launcher. The zero value is usable.
type Options struct {
	Logger  logging.Logger
	Sink    OutputSink
	Metrics metrics.Collector

	// StopTimeout is how long Stop waits after the graceful signal before
	// killing the process group
	StopTimeout time.Duration

	// KillTimeout bounds the wait for the group to disappear after the kill,
	// and how long output is drained after the host process exited
	KillTimeout time.Duration

	// IsolateEPMD points the Erlang port mapper of the instance at the
	// listen address and the peer discovery port instead of the shared
	// system-wide daemon
	IsolateEPMD bool

	// RemoveOnClose deletes the instance directory in Close. By default it
	// is kept for post-mortem inspection.
	RemoveOnClose bool

	// Environ supplies the inherited environment; defaults to os.Environ
	Environ func() []string

	// StrippedPrefixes defaults to environ.DefaultStrippedPrefixes
	StrippedPrefixes []string

	// ExtraArgs are passed to the launcher script
	ExtraArgs []string

	// PortAllocator, when set, gets the instance ports back on Close
	PortAllocator ports.Allocator
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	if o.Sink == nil {
		o.Sink = NewWriterSink(os.Stdout, os.Stderr)
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNoopCollector()
	}
	if o.StopTimeout == 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.KillTimeout == 0 {
		o.KillTimeout = DefaultKillTimeout
	}
	if o.Environ == nil {
		o.Environ = os.Environ
	}
	if o.StrippedPrefixes == nil {
		o.StrippedPrefixes = environ.DefaultStrippedPrefixes
	}
	o.StrippedPrefixes = append([]string(nil), o.StrippedPrefixes...)
	o.ExtraArgs = append([]string(nil), o.ExtraArgs...)
	return o
}

func (o Options) validate() error {
	if o.StopTimeout < 0 {
		return errors.NewValidationError("stop timeout cannot be negative", nil).WithContext("stop_timeout", o.StopTimeout)
	}
	if o.KillTimeout < 0 {
		return errors.NewValidationError("kill timeout cannot be negative", nil).WithContext("kill_timeout", o.KillTimeout)
	}
	return nil
}
