package launcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/brokerconfig"
	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"
	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"
	"github.com/core-tools/hsu-rmq-launcher/pkg/metrics"
	"github.com/core-tools/hsu-rmq-launcher/pkg/process"
	"github.com/core-tools/hsu-rmq-launcher/pkg/provision"
	"github.com/core-tools/hsu-rmq-launcher/pkg/runfile"

	"github.com/google/uuid"
)

// Launcher owns one disposable broker instance: its directory, its host
// process and every process that one spawns. A Launcher is single use.
//
// Start provisions and launches, Wait blocks until the broker ends, Stop
// terminates the whole process group and Close releases everything. All
// methods are safe for concurrent use.
type Launcher struct {
	spec      instance.Spec
	options   Options
	logger    logging.Logger
	runID     string
	directory string

	mutex       sync.RWMutex
	state       State
	dir         *provision.Directory
	cmd         *exec.Cmd
	group       *process.ProcessGroup
	environment []string
	commandLine string
	stdout      *lineWriter
	stderr      *lineWriter

	// startDone is closed when Start leaves StateStarting
	startDone chan struct{}

	// exited is set as soon as the host process has been reaped, before
	// output is flushed and the final state is recorded
	exited        bool
	stopRequested bool
	status        ExitStatus
	waitErr       error
	done          chan struct{}

	closing   bool
	closeOnce sync.Once
	closeErr  error
}

// New prepares a launcher for spec. Unset optional spec fields take their
// defaults. Nothing touches the filesystem until Start.
func New(spec instance.Spec, options Options) (*Launcher, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}
	options = options.withDefaults()
	spec = spec.WithDefaults()

	directory, err := spec.Directory()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return &Launcher{
		spec:      spec,
		options:   options,
		logger:    options.Logger,
		runID:     runID,
		directory: directory,
		state:     StateUnstarted,
		startDone: make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start validates the spec, provisions the instance directory, writes the
// broker configuration and launches the broker in its own process group.
// It returns once the process is running; it does not wait for the broker
// to accept connections.
//
// On failure nothing is left behind: a directory created by this call is
// removed again.
func (l *Launcher) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	l.mutex.Lock()
	if l.closing {
		l.mutex.Unlock()
		return errors.NewPreconditionError("launcher is closed", nil).WithContext("node", l.spec.NodeName())
	}
	if l.state != StateUnstarted {
		state := l.state
		l.mutex.Unlock()
		return errors.NewValidationError(
			fmt.Sprintf("cannot start instance in state '%s': operation not allowed", state),
			nil).WithContext("node", l.spec.NodeName()).WithContext("current_state", string(state))
	}
	l.state = StateStarting
	l.mutex.Unlock()

	node := l.spec.NodeName()
	l.logger.Infof("Starting broker instance, node: %s, run: %s", node, l.runID)

	if err := l.spec.Validate(); err != nil {
		return l.failStart(err)
	}
	if err := ctx.Err(); err != nil {
		return l.failStart(errors.NewCancelledError("start cancelled", err))
	}

	dir, err := provision.Provision(l.spec, l.logger)
	if err != nil {
		return l.failStart(err)
	}

	files, err := brokerconfig.WriteFiles(dir.Path, l.spec)
	if err != nil {
		return l.failStart(l.rollback(dir, err))
	}

	environment := buildEnvironment(
		l.options.Environ(),
		l.options.StrippedPrefixes,
		brokerOverrides(l.spec, dir, files, l.options.IsolateEPMD),
	)

	stdout := newLineWriter(l.options.Sink, node, StreamStdout)
	stderr := newLineWriter(l.options.Sink, node, StreamStderr)

	config := process.ExecutionConfig{
		ExecutablePath:   dir.LauncherScript,
		Args:             l.options.ExtraArgs,
		Environment:      environment,
		WorkingDirectory: dir.Path,
		WaitDelay:        l.options.KillTimeout,
		Stdout:           stdout,
		Stderr:           stderr,
	}

	cmd, err := process.Execute(config, node, l.logger)
	if err != nil {
		return l.failStart(l.rollback(dir, err))
	}

	group, err := process.AttachProcessGroup(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return l.failStart(l.rollback(dir, errors.NewLaunchError("failed to attach process group", err).WithContext("pid", cmd.Process.Pid)))
	}

	if err := ctx.Err(); err != nil {
		l.logger.Infof("Context cancelled during startup, cleaning up, node: %s", node)
		_ = group.Kill()
		_ = cmd.Wait()
		_ = group.Close()
		return l.failStart(l.rollback(dir, errors.NewCancelledError("start cancelled", err)))
	}

	l.mutex.Lock()
	if l.closing {
		l.mutex.Unlock()
		l.logger.Infof("Launcher closed during startup, cleaning up, node: %s", node)
		_ = group.Kill()
		_ = cmd.Wait()
		_ = group.Close()
		return l.failStart(l.rollback(dir, errors.NewCancelledError("launcher closed during start", nil)))
	}
	l.dir = dir
	l.cmd = cmd
	l.group = group
	l.environment = environment
	l.commandLine = config.CommandLine()
	l.stdout = stdout
	l.stderr = stderr
	l.state = StateRunning
	close(l.startDone)
	l.mutex.Unlock()

	l.options.Metrics.InstanceStarted()
	go l.waitForExit(cmd, group)

	l.writeRunFiles(dir, cmd.Process.Pid)

	l.logger.Infof("Broker instance started, node: %s, run: %s, PID: %d, directory: %s",
		node, l.runID, cmd.Process.Pid, dir.Path)
	return nil
}

// Wait blocks until the broker host process has ended and returns how it
// ended. It may be called any number of times from any goroutine.
func (l *Launcher) Wait(ctx context.Context) (ExitStatus, error) {
	if ctx == nil {
		return ExitStatus{}, errors.NewValidationError("context cannot be nil", nil)
	}

	state := l.State()
	if state == StateUnstarted || state == StateFailedStart {
		return ExitStatus{}, errors.NewPreconditionError("instance is not started", nil).
			WithContext("node", l.spec.NodeName()).WithContext("current_state", string(state))
	}
	if state == StateStarting {
		return ExitStatus{}, errors.NewPreconditionError("instance is still starting", nil).
			WithContext("node", l.spec.NodeName())
	}

	select {
	case <-l.done:
		l.mutex.RLock()
		defer l.mutex.RUnlock()
		return l.status, l.waitErr
	case <-ctx.Done():
		return ExitStatus{}, errors.NewCancelledError("wait cancelled", ctx.Err()).WithContext("node", l.spec.NodeName())
	}
}

// Stop terminates the broker and all of its descendants: the graceful
// signal goes to the whole process group, and whatever survives StopTimeout
// (or the cancellation of ctx) is killed. Stop is a no-op unless the
// instance is running.
func (l *Launcher) Stop(ctx context.Context) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	l.mutex.Lock()
	if l.state != StateRunning {
		l.logger.Debugf("Stop ignored, node: %s, state: %s", l.spec.NodeName(), l.state)
		l.mutex.Unlock()
		return nil
	}
	if l.exited {
		l.mutex.Unlock()
		return l.awaitExitRecorded()
	}
	l.state = StateStopping
	l.stopRequested = true
	group := l.group
	pid := l.cmd.Process.Pid
	l.mutex.Unlock()

	node := l.spec.NodeName()
	started := time.Now()

	l.logger.Infof("Stopping broker instance, node: %s, PID: %d, timeout: %v", node, pid, l.options.StopTimeout)

	graceful := true
	if err := group.SendTerminationSignal(); err != nil {
		l.logger.Warnf("Failed to send termination signal, node: %s, PID: %d, error: %v", node, pid, err)
		graceful = false
	}

	if graceful {
		select {
		case <-l.done:
			l.options.Metrics.TerminationDuration(metrics.TerminationGraceful, time.Since(started))
			l.logger.Infof("Broker instance terminated gracefully, node: %s, PID: %d", node, pid)
			return nil
		case <-time.After(l.options.StopTimeout):
			l.logger.Warnf("Broker instance did not terminate within %v, forcing termination, node: %s", l.options.StopTimeout, node)
		case <-ctx.Done():
			l.logger.Warnf("Context cancelled during graceful termination, forcing termination, node: %s", node)
		}
	}

	return l.kill(group, started)
}

func (l *Launcher) kill(group *process.ProcessGroup, started time.Time) error {
	node := l.spec.NodeName()
	l.logger.Warnf("Force killing process group, node: %s", node)

	if err := group.Kill(); err != nil {
		l.logger.Errorf("Failed to kill process group, node: %s, error: %v", node, err)
	}

	// output draining after the exit may take up to KillTimeout as well
	select {
	case <-l.done:
		l.options.Metrics.TerminationDuration(metrics.TerminationForced, time.Since(started))
		l.logger.Infof("Broker instance force terminated, node: %s", node)
		return nil
	case <-time.After(2 * l.options.KillTimeout):
		return errors.NewTimeoutError("process group did not terminate even after force termination", nil).
			WithContext("node", node)
	}
}

// awaitExitRecorded waits for waitForExit to finish with a process that
// already ended on its own
func (l *Launcher) awaitExitRecorded() error {
	node := l.spec.NodeName()
	l.logger.Debugf("Broker instance already exited, waiting for exit to be recorded, node: %s", node)
	select {
	case <-l.done:
		return nil
	case <-time.After(2 * l.options.KillTimeout):
		return errors.NewTimeoutError("exit of broker instance was not recorded", nil).WithContext("node", node)
	}
}

// Close stops the instance if it is running and releases its resources.
// A Start in progress is finished first; once Close has begun, a pending
// launch is rolled back and later Starts fail. The instance directory is
// removed only with Options.RemoveOnClose. Ports go back to
// Options.PortAllocator only when no broker can still hold them. Close is
// idempotent; later calls return the result of the first.
func (l *Launcher) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.close()
	})
	return l.closeErr
}

func (l *Launcher) close() error {
	collection := errors.NewErrorCollection()
	node := l.spec.NodeName()

	l.mutex.Lock()
	l.closing = true
	starting := l.state == StateStarting
	l.mutex.Unlock()

	if starting {
		l.logger.Debugf("Waiting for start to finish before closing, node: %s", node)
		<-l.startDone
	}

	stopErr := l.Stop(context.Background())
	if stopErr != nil {
		collection.Add(stopErr)
	}

	l.mutex.RLock()
	state := l.state
	group := l.group
	dir := l.dir
	l.mutex.RUnlock()

	if state == StateStopping && stopErr == nil {
		// a concurrent Stop owns the termination
		select {
		case <-l.done:
		case <-time.After(l.options.StopTimeout + 2*l.options.KillTimeout):
			collection.Add(errors.NewTimeoutError("instance did not stop", nil).WithContext("node", node))
		}
		state = l.State()
	}

	if group != nil {
		if err := group.Close(); err != nil {
			collection.Add(errors.NewProcessError("failed to release process group", err).WithContext("node", node))
		}
	}

	if l.options.RemoveOnClose && dir != nil && state.IsTerminal() {
		if err := dir.Remove(); err != nil {
			collection.Add(err)
		} else {
			l.logger.Infof("Removed instance directory, node: %s, path: %s", node, dir.Path)
		}
	}

	if l.options.PortAllocator != nil {
		if state == StateUnstarted || state.IsTerminal() {
			l.options.PortAllocator.Release(l.spec.Ports)
		} else {
			l.logger.Warnf("Instance still %s, keeping its ports leased, node: %s", state, node)
		}
	}

	l.logger.Debugf("Launcher closed, node: %s, state: %s", node, state)
	return collection.ToError()
}

// Run starts the instance and blocks until it ends. Cancelling ctx stops
// the instance; the returned status then reflects the termination.
func (l *Launcher) Run(ctx context.Context) (ExitStatus, error) {
	if err := l.Start(ctx); err != nil {
		return ExitStatus{}, err
	}

	go func() {
		select {
		case <-ctx.Done():
			if err := l.Stop(context.Background()); err != nil {
				l.logger.Errorf("Failed to stop broker instance, node: %s, error: %v", l.spec.NodeName(), err)
			}
		case <-l.done:
		}
	}()

	return l.Wait(context.Background())
}

func (l *Launcher) waitForExit(cmd *exec.Cmd, group *process.ProcessGroup) {
	node := l.spec.NodeName()
	pid := cmd.Process.Pid

	err := cmd.Wait()

	l.mutex.Lock()
	l.exited = true
	l.mutex.Unlock()

	var waitErr error
	var exitErr *exec.ExitError
	switch {
	case err == nil, stderrors.As(err, &exitErr):
	case stderrors.Is(err, exec.ErrWaitDelay):
		l.logger.Warnf("Output pipes still open after exit, node: %s, PID: %d", node, pid)
	default:
		waitErr = errors.NewProcessError("process wait failed", err).WithContext("pid", pid)
	}

	// descendants must not outlive the host process
	if group.IsAlive() {
		l.logger.Warnf("Descendants of PID %d still running after exit, killing process group, node: %s", pid, node)
		if err := group.Kill(); err != nil {
			l.logger.Errorf("Failed to kill process group, node: %s, error: %v", node, err)
		}
	}

	l.mutex.RLock()
	stdout, stderr := l.stdout, l.stderr
	l.mutex.RUnlock()
	stdout.Flush()
	stderr.Flush()

	l.mutex.Lock()
	l.status = exitStatusOf(cmd.ProcessState)
	l.waitErr = waitErr
	outcome := metrics.OutcomeExited
	l.state = StateExited
	if l.stopRequested {
		outcome = metrics.OutcomeKilled
		l.state = StateKilled
	}
	status := l.status
	close(l.done)
	l.mutex.Unlock()

	l.options.Metrics.InstanceExited(outcome)
	l.logger.Infof("Broker instance ended, node: %s, PID: %d, %s", node, pid, status)
}

// writeRunFiles records how to find the running instance; the broker does
// not depend on them, so failures are only logged
func (l *Launcher) writeRunFiles(dir *provision.Directory, pid int) {
	if _, err := runfile.WritePIDFile(dir.Path, pid); err != nil {
		l.logger.Warnf("Failed to write PID file, node: %s, error: %v", l.spec.NodeName(), err)
	}
	descriptor := runfile.NewDescriptor(l.spec, l.runID, pid, time.Now())
	if _, err := runfile.WriteDescriptor(dir.Path, descriptor); err != nil {
		l.logger.Warnf("Failed to write instance descriptor, node: %s, error: %v", l.spec.NodeName(), err)
	}
}

func (l *Launcher) failStart(err error) error {
	l.mutex.Lock()
	l.state = StateFailedStart
	close(l.startDone)
	l.mutex.Unlock()

	l.options.Metrics.StartFailed(string(errors.TypeOf(err)))
	l.logger.Errorf("Failed to start broker instance, node: %s, error: %v", l.spec.NodeName(), err)
	return err
}

// rollback removes a directory this launcher created and returns cause
func (l *Launcher) rollback(dir *provision.Directory, cause error) error {
	if err := dir.Remove(); err != nil {
		l.logger.Errorf("Failed to roll back instance directory, path: %s, error: %v", dir.Path, err)
	} else {
		l.logger.Debugf("Rolled back instance directory, path: %s", dir.Path)
	}
	return cause
}

// State returns the current lifecycle state
func (l *Launcher) State() State {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.state
}

// Spec returns the spec with defaults applied
func (l *Launcher) Spec() instance.Spec {
	return l.spec.WithDefaults()
}

func (l *Launcher) NodeName() string {
	return l.spec.NodeName()
}

// Directory returns the absolute instance directory path, whether or not
// it exists yet
func (l *Launcher) Directory() string {
	return l.directory
}

// PID returns the host process id, or 0 before a successful Start
func (l *Launcher) PID() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.cmd == nil || l.cmd.Process == nil {
		return 0
	}
	return l.cmd.Process.Pid
}

// RunID identifies this launcher in logs
func (l *Launcher) RunID() string {
	return l.runID
}

// CommandLine returns the quoted command line of the host process
func (l *Launcher) CommandLine() string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.commandLine
}

// Environment returns a copy of the environment the host process was
// started with, as sorted KEY=VALUE entries
func (l *Launcher) Environment() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return append([]string(nil), l.environment...)
}
