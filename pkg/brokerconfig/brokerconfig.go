// Package brokerconfig renders the RabbitMQ files of an instance directory.
//
// The settings file uses the classic Erlang term format, which is full of
// braces, so the template below is parsed with "<%" and "%>" as action
// delimiters instead of the default "{{" and "}}".
package brokerconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"
)

const (
	EnabledPluginsFileName = "enabled_plugins"
	SettingsFileName       = "rabbitmq.config"
)

const settingsTemplate = `[
    {rabbit, [
        {tcp_listeners, [{<% erlstr .Address %>, <% .Ports.Client %>}]},
        {default_user, <<<% erlstr .User %>>>},
        {default_pass, <<<% erlstr .Pass %>>>}
    ]},
    {rabbitmq_management, [
        {listener, [
            {ip, <% erlstr .Address %>},
            {port, <% .Ports.Management %>}
        ]}
    ]},
    {kernel, [
        {inet_dist_use_interface, {<% .Octets %>}},
        {inet_dist_listen_min, <% .Ports.Distribution %>},
        {inet_dist_listen_max, <% .Ports.Distribution %>}
    ]}
].
`

var settings = template.Must(template.New(SettingsFileName).
	Delims("<%", "%>").
	Funcs(template.FuncMap{"erlstr": erlangString}).
	Parse(settingsTemplate))

// bareAtom matches atoms that need no quoting
var bareAtom = regexp.MustCompile(`^[a-z][A-Za-z0-9_@]*$`)

type settingsData struct {
	Address string
	Octets  string
	User    string
	Pass    string
	Ports   instance.Ports
}

// Files are the paths written by WriteFiles
type Files struct {
	EnabledPlugins string
	Settings       string
}

// RenderEnabledPlugins renders the plugin activation term, e.g.
// "[rabbitmq_management]."
func RenderEnabledPlugins(plugins []string) (string, error) {
	if len(plugins) == 0 {
		return "", errors.NewValidationError("no plugins to enable", nil)
	}
	atoms := make([]string, 0, len(plugins))
	for _, plugin := range plugins {
		if plugin == "" {
			return "", errors.NewValidationError("empty plugin name", nil)
		}
		atoms = append(atoms, erlangAtom(plugin))
	}
	out := "[" + strings.Join(atoms, ",") + "]."
	if err := checkASCII(EnabledPluginsFileName, out); err != nil {
		return "", err
	}
	return out, nil
}

// RenderSettings renders rabbitmq.config for spec
func RenderSettings(spec instance.Spec) (string, error) {
	if err := spec.Ports.Validate(); err != nil {
		return "", err
	}
	addr, err := spec.ListenIPv4()
	if err != nil {
		return "", err
	}
	ip := addr.As4()

	data := settingsData{
		Address: addr.String(),
		Octets:  fmt.Sprintf("%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3]),
		User:    spec.DefaultUser,
		Pass:    spec.DefaultPass,
		Ports:   spec.Ports,
	}

	var buf bytes.Buffer
	if err := settings.Execute(&buf, data); err != nil {
		return "", errors.NewInternalError("failed to render settings", err)
	}
	out := buf.String()
	if err := checkASCII(SettingsFileName, out); err != nil {
		return "", err
	}
	return out, nil
}

// WriteFiles renders both files and writes them into dir
func WriteFiles(dir string, spec instance.Spec) (Files, error) {
	plugins, err := RenderEnabledPlugins(spec.Plugins)
	if err != nil {
		return Files{}, err
	}
	settingsText, err := RenderSettings(spec)
	if err != nil {
		return Files{}, err
	}

	files := Files{
		EnabledPlugins: filepath.Join(dir, EnabledPluginsFileName),
		Settings:       filepath.Join(dir, SettingsFileName),
	}
	if err := os.WriteFile(files.EnabledPlugins, []byte(plugins), 0o644); err != nil {
		return Files{}, errors.NewIOError("failed to write enabled plugins", err).WithContext("path", files.EnabledPlugins)
	}
	if err := os.WriteFile(files.Settings, []byte(settingsText), 0o644); err != nil {
		return Files{}, errors.NewIOError("failed to write settings", err).WithContext("path", files.Settings)
	}
	return files, nil
}

// erlangString quotes s as an Erlang string literal
func erlangString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func erlangAtom(s string) string {
	if bareAtom.MatchString(s) {
		return s
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\', '\'':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// checkASCII rejects output the broker's config parser cannot read
func checkASCII(file, text string) error {
	for i := 0; i < len(text); i++ {
		if text[i] > 0x7f {
			return errors.NewValidationError("configuration must be ASCII", nil).
				WithContext("file", file).WithContext("offset", i)
		}
	}
	return nil
}
