package main

import (
	"testing"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/config"
	"github.com/core-tools/hsu-rmq-launcher/pkg/launcher"

	"github.com/stretchr/testify/assert"
)

func TestApplyFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	applyFlags(cfg, flagOptions{
		ErlangHome:     "/opt/erlang",
		RabbitMQHome:   "/opt/rabbitmq",
		BaseDir:        "/tmp/rmq",
		Listen:         "127.0.0.2",
		PortAllocation: "free",
		StopTimeout:    time.Second,
		RemoveOnExit:   true,
		LogLevel:       "debug",
		LogFormat:      "json",
		MetricsAddr:    ":9464",
	})

	assert.Equal(t, "/opt/erlang", cfg.Instance.ErlangHome)
	assert.Equal(t, "/opt/rabbitmq", cfg.Instance.RabbitMQHome)
	assert.Equal(t, "/tmp/rmq", cfg.Instance.BaseDir)
	assert.Equal(t, "127.0.0.2", cfg.Instance.ListenAddress)
	assert.Equal(t, "free", cfg.Instance.PortAllocation)
	assert.Equal(t, time.Second, cfg.Launcher.StopTimeout)
	assert.True(t, cfg.Launcher.RemoveOnExit)
	assert.False(t, cfg.Launcher.IsolateEPMD)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9464", cfg.Metrics.Address)
	assert.NoError(t, config.ValidateConfig(cfg))
}

func TestApplyFlags_KeepsFileValues(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Instance.BaseDir = "/from/file"
	cfg.Launcher.IsolateEPMD = true

	applyFlags(cfg, flagOptions{})

	assert.Equal(t, "/from/file", cfg.Instance.BaseDir)
	assert.True(t, cfg.Launcher.IsolateEPMD)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(launcher.ExitStatus{Code: 0}))
	assert.Equal(t, 3, exitCode(launcher.ExitStatus{Code: 3}))
	assert.Equal(t, 143, exitCode(launcher.ExitStatus{Code: 143, Signaled: true, Signal: "terminated"}))
	assert.Equal(t, 1, exitCode(launcher.ExitStatus{Code: -1}))
	assert.Equal(t, 1, exitCode(launcher.ExitStatus{Code: 1000}))
}

func TestRun_InvalidConfiguration(t *testing.T) {
	assert.Equal(t, 1, run([]string{"--base-dir", t.TempDir()}))
	assert.Equal(t, 1, run([]string{"--port-allocation", "random"}))
	assert.Equal(t, 0, run([]string{"--help"}))
}
