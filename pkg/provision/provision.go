// Package provision creates the private filesystem root of a broker instance.
package provision

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"
	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"
)

// Directory is an instance directory owned by exactly one instance
type Directory struct {
	Path             string
	LauncherScript   string
	ErlangExecutable string
}

// LauncherScriptPath returns the rabbitmq-server launcher script location
func LauncherScriptPath(rabbitMQHome string) string {
	return launcherScriptPath(rabbitMQHome, runtime.GOOS)
}

// ErlangExecutablePath returns the erl interpreter location
func ErlangExecutablePath(erlangHome string) string {
	return erlangExecutablePath(erlangHome, runtime.GOOS)
}

func launcherScriptPath(rabbitMQHome, goos string) string {
	if goos == "windows" {
		return filepath.Join(rabbitMQHome, "sbin", "rabbitmq-server.bat")
	}
	return filepath.Join(rabbitMQHome, "sbin", "rabbitmq-server")
}

func erlangExecutablePath(erlangHome, goos string) string {
	if goos == "windows" {
		return filepath.Join(erlangHome, "bin", "erl.exe")
	}
	return filepath.Join(erlangHome, "bin", "erl")
}

// Provision checks that the broker and runtime are installed and creates
// the instance directory. A directory left over from an earlier run is
// never reused.
func Provision(spec instance.Spec, logger logging.Logger) (*Directory, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	dir, err := spec.Directory()
	if err != nil {
		return nil, err
	}

	script := LauncherScriptPath(spec.RabbitMQHome)
	if err := requireFile(script, "rabbitmq-server launcher script not found"); err != nil {
		return nil, err
	}

	erl := ErlangExecutablePath(spec.ErlangHome)
	if err := requireFile(erl, "erl executable not found"); err != nil {
		return nil, err
	}

	if _, err := os.Stat(dir); err == nil {
		return nil, errors.NewPreconditionError("the instance directory already exists", nil).WithContext("path", dir)
	} else if !os.IsNotExist(err) {
		return nil, errors.NewIOError("failed to inspect instance directory", err).WithContext("path", dir)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, errors.NewIOError("failed to create base directory", err).WithContext("path", filepath.Dir(dir))
	}

	// Mkdir fails if another provision won the race since the Stat above
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, errors.NewPreconditionError("the instance directory already exists", err).WithContext("path", dir)
		}
		return nil, errors.NewIOError("failed to create instance directory", err).WithContext("path", dir)
	}

	logger.Infof("Provisioned instance directory, node: %s, path: %s", spec.NodeName(), dir)

	return &Directory{
		Path:             dir,
		LauncherScript:   script,
		ErlangExecutable: erl,
	}, nil
}

// Remove deletes the instance directory and everything in it
func (d *Directory) Remove() error {
	if d == nil || d.Path == "" {
		return nil
	}
	if err := os.RemoveAll(d.Path); err != nil {
		return errors.NewIOError("failed to remove instance directory", err).WithContext("path", d.Path)
	}
	return nil
}

// Join returns a path inside the instance directory
func (d *Directory) Join(elem ...string) string {
	return filepath.Join(append([]string{d.Path}, elem...)...)
}

func requireFile(path, message string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewPreconditionError(message, nil).WithContext("path", path)
		}
		return errors.NewIOError(message, err).WithContext("path", path)
	}
	if info.IsDir() {
		return errors.NewPreconditionError(message+" (path is a directory)", nil).WithContext("path", path)
	}
	return nil
}
