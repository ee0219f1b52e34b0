package launcher

import (
	"strconv"

	"github.com/core-tools/hsu-rmq-launcher/pkg/brokerconfig"
	"github.com/core-tools/hsu-rmq-launcher/pkg/environ"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"
	"github.com/core-tools/hsu-rmq-launcher/pkg/provision"
)

// Names of the variables the launcher injects into the broker environment
const (
	EnvErlangHome         = "ERLANG_HOME"
	EnvRabbitMQBase       = "RABBITMQ_BASE"
	EnvNodeName           = "RABBITMQ_NODENAME"
	EnvConfigFile         = "RABBITMQ_CONFIG_FILE"
	EnvEnabledPluginsFile = "RABBITMQ_ENABLED_PLUGINS_FILE"
	EnvMnesiaBase         = "RABBITMQ_MNESIA_BASE"
	EnvLogBase            = "RABBITMQ_LOG_BASE"
	EnvEPMDAddress        = "ERL_EPMD_ADDRESS"
	EnvEPMDPort           = "ERL_EPMD_PORT"
)

// brokerOverrides returns the variables that tie the broker to its
// instance directory. The launcher script on Unix does not derive paths
// from RABBITMQ_BASE, so the file and data locations are named explicitly.
func brokerOverrides(spec instance.Spec, dir *provision.Directory, files brokerconfig.Files, isolateEPMD bool) map[string]string {
	overrides := map[string]string{
		EnvErlangHome:         spec.ErlangHome,
		EnvRabbitMQBase:       dir.Path,
		EnvNodeName:           spec.NodeName(),
		EnvConfigFile:         files.Settings,
		EnvEnabledPluginsFile: files.EnabledPlugins,
		EnvMnesiaBase:         dir.Join("db"),
		EnvLogBase:            dir.Join("log"),
	}
	if isolateEPMD {
		overrides[EnvEPMDAddress] = spec.ListenAddress
		overrides[EnvEPMDPort] = strconv.Itoa(spec.Ports.PeerDiscovery)
	}
	return overrides
}

// buildEnvironment strips the inherited broker variables and applies the
// instance overrides
func buildEnvironment(inherited []string, prefixes []string, overrides map[string]string) []string {
	return environ.ToList(environ.Sanitize(environ.FromList(inherited), prefixes, overrides))
}
