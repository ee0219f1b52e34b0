package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"
	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"
	"github.com/core-tools/hsu-rmq-launcher/pkg/ports"
	"github.com/core-tools/hsu-rmq-launcher/pkg/runfile"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Port allocation strategies
const (
	PortAllocationFixed = "fixed"
	PortAllocationFree  = "free"
)

// LauncherConfig represents the top-level configuration file structure
type LauncherConfig struct {
	Instance InstanceConfig    `yaml:"instance" toml:"instance"`
	Launcher LauncherOptions   `yaml:"launcher" toml:"launcher"`
	Logging  logging.ZapConfig `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig     `yaml:"metrics" toml:"metrics"`
}

// InstanceConfig describes the broker instance to launch
type InstanceConfig struct {
	ErlangHome    string `yaml:"erlang_home" toml:"erlang_home"`
	RabbitMQHome  string `yaml:"rabbitmq_home" toml:"rabbitmq_home"`
	BaseDir       string `yaml:"base_dir" toml:"base_dir"`
	ListenAddress string `yaml:"listen_address,omitempty" toml:"listen_address"`

	// PortAllocation is "fixed" (consecutive ports from PortBase) or "free"
	// (ephemeral ports picked by the OS). Ignored when Ports is set.
	PortAllocation string         `yaml:"port_allocation,omitempty" toml:"port_allocation"`
	PortBase       int            `yaml:"port_base,omitempty" toml:"port_base"`
	Ports          instance.Ports `yaml:"ports,omitempty" toml:"ports"`

	DefaultUser string   `yaml:"default_user,omitempty" toml:"default_user"`
	DefaultPass string   `yaml:"default_pass,omitempty" toml:"default_pass"`
	Plugins     []string `yaml:"plugins,omitempty" toml:"plugins"`
}

// LauncherOptions controls the lifecycle of the launched instance
type LauncherOptions struct {
	StopTimeout      time.Duration `yaml:"stop_timeout,omitempty" toml:"stop_timeout"`
	KillTimeout      time.Duration `yaml:"kill_timeout,omitempty" toml:"kill_timeout"`
	IsolateEPMD      bool          `yaml:"isolate_epmd,omitempty" toml:"isolate_epmd"`
	RemoveOnExit     bool          `yaml:"remove_on_exit,omitempty" toml:"remove_on_exit"`
	ExtraArgs        []string      `yaml:"extra_args,omitempty" toml:"extra_args"`
	StrippedPrefixes []string      `yaml:"stripped_prefixes,omitempty" toml:"stripped_prefixes"`
}

// MetricsConfig enables the Prometheus endpoint when Address is set
type MetricsConfig struct {
	Address   string `yaml:"address,omitempty" toml:"address"`
	Namespace string `yaml:"namespace,omitempty" toml:"namespace"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *LauncherConfig {
	config := &LauncherConfig{}
	setConfigDefaults(config)
	return config
}

// LoadConfigFromFile loads launcher configuration from a YAML (.yaml, .yml)
// or TOML (.toml) file
func LoadConfigFromFile(filename string) (*LauncherConfig, error) {
	var config LauncherConfig

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
		}

	case ".toml":
		if _, err := os.Stat(filename); err != nil {
			return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
		}
		meta, err := toml.DecodeFile(filename, &config)
		if err != nil {
			return nil, errors.NewValidationError("failed to parse TOML configuration", err).WithContext("filename", filename)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, errors.NewValidationError(fmt.Sprintf("unknown configuration key: %s", undecoded[0]), nil).
				WithContext("filename", filename)
		}

	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported configuration file extension: %s", ext), nil).
			WithContext("filename", filename).WithContext("supported_extensions", ".yaml, .yml, .toml")
	}

	setConfigDefaults(&config)

	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *LauncherConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateInstanceConfig(&config.Instance); err != nil {
		return errors.NewValidationError("invalid instance configuration", err)
	}

	if config.Launcher.StopTimeout < 0 {
		return errors.NewValidationError("stop timeout cannot be negative", nil)
	}
	if config.Launcher.KillTimeout < 0 {
		return errors.NewValidationError("kill timeout cannot be negative", nil)
	}

	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		return errors.NewValidationError("invalid log level", err).WithContext("level", config.Logging.Level)
	}
	switch config.Logging.Format {
	case "json", "console":
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported log format: %s", config.Logging.Format), nil).
			WithContext("supported_formats", "json, console")
	}

	return nil
}

func validateInstanceConfig(config *InstanceConfig) error {
	if config.ErlangHome == "" {
		return errors.NewValidationError("erlang_home is required", nil)
	}
	if config.RabbitMQHome == "" {
		return errors.NewValidationError("rabbitmq_home is required", nil)
	}
	if config.BaseDir == "" {
		return errors.NewValidationError("base_dir is required", nil)
	}

	if !config.Ports.IsZero() {
		return config.Ports.Validate()
	}

	switch config.PortAllocation {
	case PortAllocationFixed:
		if config.PortBase <= 0 || config.PortBase+3 > 65535 {
			return errors.NewValidationError(fmt.Sprintf("invalid port base: %d", config.PortBase), nil)
		}
	case PortAllocationFree:
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported port allocation: %s", config.PortAllocation), nil).
			WithContext("supported_strategies", "fixed, free")
	}

	return nil
}

// NewAllocator returns the allocator selected by the configuration
func NewAllocator(config *LauncherConfig) (ports.Allocator, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}
	return ports.NewAllocator(config.Instance.PortAllocation, config.Instance.PortBase)
}

// BuildInstanceSpec turns the configuration into an instance spec. Ports
// given explicitly are used as they are; otherwise they are taken from
// allocator, and the caller owns releasing them.
func BuildInstanceSpec(config *LauncherConfig, allocator ports.Allocator) (instance.Spec, error) {
	if config == nil {
		return instance.Spec{}, errors.NewValidationError("configuration cannot be nil", nil)
	}

	spec := instance.Spec{
		ErlangHome:    config.Instance.ErlangHome,
		RabbitMQHome:  config.Instance.RabbitMQHome,
		BaseDir:       config.Instance.BaseDir,
		ListenAddress: config.Instance.ListenAddress,
		Ports:         config.Instance.Ports,
		DefaultUser:   config.Instance.DefaultUser,
		DefaultPass:   config.Instance.DefaultPass,
		Plugins:       append([]string(nil), config.Instance.Plugins...),
	}.WithDefaults()

	if spec.Ports.IsZero() {
		if allocator == nil {
			return instance.Spec{}, errors.NewValidationError("port allocator is required when ports are not configured", nil)
		}
		allocated, err := allocator.Allocate()
		if err != nil {
			return instance.Spec{}, err
		}
		spec.Ports = allocated
	}

	return spec, nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *LauncherConfig) {
	if config.Instance.BaseDir == "" {
		config.Instance.BaseDir = runfile.DefaultBaseDirectory()
	}
	if config.Instance.ListenAddress == "" {
		config.Instance.ListenAddress = instance.DefaultListenAddress
	}
	if config.Instance.PortAllocation == "" {
		config.Instance.PortAllocation = PortAllocationFixed
	}
	if config.Instance.PortBase == 0 {
		config.Instance.PortBase = ports.DefaultFixedBase
	}
	if config.Instance.DefaultUser == "" {
		config.Instance.DefaultUser = instance.DefaultUser
	}
	if config.Instance.DefaultPass == "" {
		config.Instance.DefaultPass = instance.DefaultPass
	}
	if len(config.Instance.Plugins) == 0 {
		config.Instance.Plugins = []string{instance.ManagementPlugin}
	}

	if config.Launcher.StopTimeout == 0 {
		config.Launcher.StopTimeout = 10 * time.Second
	}
	if config.Launcher.KillTimeout == 0 {
		config.Launcher.KillTimeout = 5 * time.Second
	}

	defaults := logging.DefaultZapConfig()
	if config.Logging.Level == "" {
		config.Logging.Level = defaults.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = defaults.Format
	}
	if config.Logging.Output == "" {
		config.Logging.Output = defaults.Output
	}
}
