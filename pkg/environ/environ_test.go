package environ

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func developerEnvironment() map[string]string {
	return map[string]string{
		"PATH":                      "/usr/bin:/bin",
		"HOME":                      "/home/dev",
		"RABBITMQ_NODENAME":         "rabbit@devbox",
		"RABBITMQ_CONFIG_FILE":      "/etc/rabbitmq/rabbitmq",
		"ERLANG_HOME":               "/usr/lib/erlang",
		"ERL_EPMD_PORT":             "4369",
		"ERL_LIBS":                  "/opt/erl_libs",
		"ERLX":                      "not a family member",
		"MY_RABBITMQ_SETTING":       "prefix only counts at the start",
		"RABBITMQ_SERVER_ERL_ARGS":  "+P 1048576",
		"ERL_AFLAGS":                "-kernel shell_history enabled",
		"rabbitmq_lowercase_origin": "kept on case-sensitive systems",
	}
}

func instanceOverrides() map[string]string {
	return map[string]string{
		"ERLANG_HOME":       "/opt/erlang",
		"RABBITMQ_BASE":     "/tmp/test/test-rmq-1230",
		"RABBITMQ_NODENAME": "test-rmq-1230@localhost",
	}
}

func TestSanitize(t *testing.T) {
	inherited := developerEnvironment()
	env := sanitize(inherited, DefaultStrippedPrefixes, instanceOverrides(), false)

	assert.Equal(t, map[string]string{
		"PATH":                      "/usr/bin:/bin",
		"HOME":                      "/home/dev",
		"ERLX":                      "not a family member",
		"MY_RABBITMQ_SETTING":       "prefix only counts at the start",
		"rabbitmq_lowercase_origin": "kept on case-sensitive systems",
		"ERLANG_HOME":               "/opt/erlang",
		"RABBITMQ_BASE":             "/tmp/test/test-rmq-1230",
		"RABBITMQ_NODENAME":         "test-rmq-1230@localhost",
	}, env)
}

func TestSanitize_DoesNotMutateInherited(t *testing.T) {
	inherited := developerEnvironment()
	before := developerEnvironment()

	_ = Sanitize(inherited, DefaultStrippedPrefixes, instanceOverrides())

	assert.Equal(t, before, inherited)
}

func TestSanitize_Idempotent(t *testing.T) {
	for _, foldCase := range []bool{false, true} {
		once := sanitize(developerEnvironment(), DefaultStrippedPrefixes, instanceOverrides(), foldCase)
		twice := sanitize(once, DefaultStrippedPrefixes, instanceOverrides(), foldCase)
		assert.Equal(t, once, twice)
	}
}

func TestSanitize_StripsEveryProtectedKey(t *testing.T) {
	inherited := developerEnvironment()
	overrides := instanceOverrides()
	env := sanitize(inherited, DefaultStrippedPrefixes, overrides, false)

	for k := range inherited {
		protected := false
		for _, prefix := range DefaultStrippedPrefixes {
			if strings.HasPrefix(k, prefix) {
				protected = true
			}
		}
		if !protected {
			continue
		}
		if want, ok := overrides[k]; ok {
			assert.Equal(t, want, env[k], k)
		} else {
			assert.NotContains(t, env, k)
		}
	}
}

func TestSanitize_FoldCase(t *testing.T) {
	inherited := map[string]string{
		"Path":             `C:\Windows`,
		"rabbitmq_base":    `C:\Users\dev\AppData\Roaming\RabbitMQ`,
		"Erlang_Home":      `C:\Program Files\erl10.0.1`,
		"ComputerName":     "DEVBOX",
		"RABBITMQ_LOGS":    "-",
		"erl_epmd_address": "0.0.0.0",
	}
	overrides := map[string]string{
		"PATH":          `C:\erl\bin`,
		"RABBITMQ_BASE": `C:\tmp\test-rmq-1230`,
	}

	env := sanitize(inherited, DefaultStrippedPrefixes, overrides, true)

	assert.Equal(t, map[string]string{
		"PATH":          `C:\erl\bin`,
		"ComputerName":  "DEVBOX",
		"RABBITMQ_BASE": `C:\tmp\test-rmq-1230`,
	}, env)
}

func TestSanitize_NilInputs(t *testing.T) {
	env := Sanitize(nil, nil, nil)
	require.NotNil(t, env)
	assert.Empty(t, env)
}

func TestFromListToList(t *testing.T) {
	env := FromList([]string{
		"B=2",
		"A=1",
		"EMPTY=",
		"WITH_EQUALS=a=b",
		"=C:=C:\\",
		"NOEQUALS",
		"A=override",
	})

	assert.Equal(t, map[string]string{
		"A":           "override",
		"B":           "2",
		"EMPTY":       "",
		"WITH_EQUALS": "a=b",
	}, env)

	assert.Equal(t, []string{"A=override", "B=2", "EMPTY=", "WITH_EQUALS=a=b"}, ToList(env))
}
