// Package instance describes one isolated, disposable broker instance.
package instance

import (
	"fmt"
	"net/netip"
	"path/filepath"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
)

const (
	DefaultListenAddress = "127.0.0.1"
	DefaultUser          = "admin"
	DefaultPass          = "admin"
	ManagementPlugin     = "rabbitmq_management"

	namePrefix = "test-rmq-"
	hostSuffix = "@localhost"
)

// Ports are the four listeners owned by one instance
type Ports struct {
	Client        int `yaml:"client" toml:"client"`                 // AMQP clients
	PeerDiscovery int `yaml:"peer_discovery" toml:"peer_discovery"` // epmd
	Distribution  int `yaml:"distribution" toml:"distribution"`     // Erlang distribution
	Management    int `yaml:"management" toml:"management"`         // management HTTP API
}

// List returns the ports in a fixed order: client, peer discovery,
// distribution, management.
func (p Ports) List() []int {
	return []int{p.Client, p.PeerDiscovery, p.Distribution, p.Management}
}

// IsZero reports whether no port was chosen yet
func (p Ports) IsZero() bool {
	return p == Ports{}
}

// Validate checks that every port is in range and that no two are equal
func (p Ports) Validate() error {
	names := []string{"client", "peer_discovery", "distribution", "management"}
	seen := make(map[int]string, 4)
	for i, port := range p.List() {
		if port <= 0 || port > 65535 {
			return errors.NewValidationError(fmt.Sprintf("invalid %s port: %d", names[i], port), nil).
				WithContext("valid_range", "1-65535")
		}
		if other, exists := seen[port]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("%s and %s ports are both %d", other, names[i], port), nil)
		}
		seen[port] = names[i]
	}
	return nil
}

// Spec is the immutable configuration of a single launch
type Spec struct {
	ErlangHome    string
	RabbitMQHome  string
	BaseDir       string
	ListenAddress string
	Ports         Ports
	DefaultUser   string
	DefaultPass   string
	Plugins       []string
}

// WithDefaults fills unset optional fields
func (s Spec) WithDefaults() Spec {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.DefaultUser == "" {
		s.DefaultUser = DefaultUser
	}
	if s.DefaultPass == "" {
		s.DefaultPass = DefaultPass
	}
	if len(s.Plugins) == 0 {
		s.Plugins = []string{ManagementPlugin}
	} else {
		s.Plugins = append([]string(nil), s.Plugins...)
	}
	return s
}

// NodeName is the Erlang node name, unique per client port
func (s Spec) NodeName() string {
	return fmt.Sprintf("%s%d%s", namePrefix, s.Ports.Client, hostSuffix)
}

// DirectoryName is the instance directory name below BaseDir
func (s Spec) DirectoryName() string {
	return fmt.Sprintf("%s%d", namePrefix, s.Ports.Client)
}

// Directory returns the absolute instance directory path
func (s Spec) Directory() (string, error) {
	dir, err := filepath.Abs(filepath.Join(s.BaseDir, s.DirectoryName()))
	if err != nil {
		return "", errors.NewIOError("failed to resolve instance directory", err).WithContext("base_dir", s.BaseDir)
	}
	return dir, nil
}

// ListenIPv4 parses ListenAddress, which must be an IPv4 address
func (s Spec) ListenIPv4() (netip.Addr, error) {
	addr, err := netip.ParseAddr(s.ListenAddress)
	if err != nil {
		return netip.Addr{}, errors.NewValidationError("invalid listen address", err).WithContext("listen_address", s.ListenAddress)
	}
	if !addr.Is4() {
		return netip.Addr{}, errors.NewValidationError("listen address must be IPv4", nil).WithContext("listen_address", s.ListenAddress)
	}
	return addr, nil
}

// Validate checks the spec; call WithDefaults first
func (s Spec) Validate() error {
	if s.ErlangHome == "" {
		return errors.NewValidationError("erlang home is required", nil)
	}
	if s.RabbitMQHome == "" {
		return errors.NewValidationError("rabbitmq home is required", nil)
	}
	if s.BaseDir == "" {
		return errors.NewValidationError("base directory is required", nil)
	}
	if err := s.Ports.Validate(); err != nil {
		return err
	}
	if _, err := s.ListenIPv4(); err != nil {
		return err
	}
	if s.DefaultUser == "" || s.DefaultPass == "" {
		return errors.NewValidationError("default credentials are required", nil)
	}
	if len(s.Plugins) == 0 {
		return errors.NewValidationError("at least one plugin must be enabled", nil)
	}
	for i, plugin := range s.Plugins {
		if plugin == "" {
			return errors.NewValidationError(fmt.Sprintf("empty plugin name at index %d", i), nil)
		}
	}
	return nil
}
