package runfile

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAppName     = "hsu-rmq-launcher"
	PIDFileName        = "launcher.pid"
	DescriptorFileName = "instance.yaml"
)

// Descriptor tells test harnesses how to reach a running instance. It is
// written next to the broker configuration once the broker is started.
type Descriptor struct {
	Node          string         `yaml:"node"`
	RunID         string         `yaml:"run_id"`
	PID           int            `yaml:"pid"`
	ListenAddress string         `yaml:"listen_address"`
	Ports         instance.Ports `yaml:"ports"`
	AMQPURL       string         `yaml:"amqp_url"`
	ManagementURL string         `yaml:"management_url"`
	StartedAt     time.Time      `yaml:"started_at"`
}

// NewDescriptor describes spec as launched under runID with host process pid
func NewDescriptor(spec instance.Spec, runID string, pid int, startedAt time.Time) Descriptor {
	amqp := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(spec.DefaultUser, spec.DefaultPass),
		Host:   net.JoinHostPort(spec.ListenAddress, strconv.Itoa(spec.Ports.Client)),
		Path:   "/",
	}
	management := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(spec.ListenAddress, strconv.Itoa(spec.Ports.Management)),
		Path:   "/",
	}

	return Descriptor{
		Node:          spec.NodeName(),
		RunID:         runID,
		PID:           pid,
		ListenAddress: spec.ListenAddress,
		Ports:         spec.Ports,
		AMQPURL:       amqp.String(),
		ManagementURL: management.String(),
		StartedAt:     startedAt.UTC(),
	}
}

// DefaultBaseDirectory is where instance directories go when no base
// directory is configured
func DefaultBaseDirectory() string {
	return filepath.Join(os.TempDir(), DefaultAppName)
}

// WriteDescriptor writes d to dir/instance.yaml
func WriteDescriptor(dir string, d Descriptor) (string, error) {
	path := filepath.Join(dir, DescriptorFileName)

	data, err := yaml.Marshal(d)
	if err != nil {
		return "", errors.NewInternalError("failed to encode instance descriptor", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.NewIOError("failed to write instance descriptor", err).WithContext("path", path)
	}
	return path, nil
}

// ReadDescriptor reads dir/instance.yaml
func ReadDescriptor(dir string) (Descriptor, error) {
	path := filepath.Join(dir, DescriptorFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, errors.NewIOError("failed to read instance descriptor", err).WithContext("path", path)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, errors.NewValidationError("invalid instance descriptor", err).WithContext("path", path)
	}
	return d, nil
}

// WritePIDFile writes pid to dir/launcher.pid
func WritePIDFile(dir string, pid int) (string, error) {
	path := filepath.Join(dir, PIDFileName)

	content := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}
	return path, nil
}

// ReadPIDFile reads the PID written by WritePIDFile
func ReadPIDFile(dir string) (int, error) {
	path := filepath.Join(dir, PIDFileName)

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, errors.NewValidationError("invalid PID in PID file", err).WithContext("pid_file", path).WithContext("content", pidStr)
	}
	if pid <= 0 {
		return 0, errors.NewValidationError("PID must be positive", nil).WithContext("pid_file", path).WithContext("pid", pid)
	}
	return pid, nil
}
