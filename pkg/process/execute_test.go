package process

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"

	"github.com/stretchr/testify/assert"
)

func TestValidateExecutionConfig(t *testing.T) {
	executable := filepath.Join(t.TempDir(), "missing")
	dir := t.TempDir()

	tests := []struct {
		name      string
		config    ExecutionConfig
		checkType func(error) bool
	}{
		{
			name:      "missing_path",
			config:    ExecutionConfig{},
			checkType: errors.IsValidationError,
		},
		{
			name:      "executable_not_found",
			config:    ExecutionConfig{ExecutablePath: executable},
			checkType: errors.IsPreconditionError,
		},
		{
			name:      "working_directory_missing",
			config:    ExecutionConfig{ExecutablePath: dir, WorkingDirectory: filepath.Join(dir, "nope")},
			checkType: errors.IsValidationError,
		},
		{
			name:      "bad_environment",
			config:    ExecutionConfig{ExecutablePath: dir, Environment: []string{"NOEQUALS"}},
			checkType: errors.IsValidationError,
		},
		{
			name:      "empty_environment_key",
			config:    ExecutionConfig{ExecutablePath: dir, Environment: []string{"=value"}},
			checkType: errors.IsValidationError,
		},
		{
			name:      "negative_wait_delay",
			config:    ExecutionConfig{ExecutablePath: dir, WaitDelay: -time.Second},
			checkType: errors.IsValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionConfig(tt.config)
			assert.Error(t, err)
			assert.True(t, tt.checkType(err), err.Error())
		})
	}

	assert.NoError(t, ValidateExecutionConfig(ExecutionConfig{
		ExecutablePath:   dir,
		WorkingDirectory: dir,
		Environment:      []string{"A=1", "EMPTY="},
	}))
}

func TestExecutionConfig_CommandLine(t *testing.T) {
	config := ExecutionConfig{
		ExecutablePath: `C:\path with space\x.bat`,
		Args:           []string{"-detached", `say "hi"`},
	}
	assert.Equal(t, `"C:\path with space\x.bat" -detached "say ""hi"""`, config.CommandLine())
}

func TestExecute_MissingExecutable(t *testing.T) {
	_, err := Execute(ExecutionConfig{ExecutablePath: filepath.Join(t.TempDir(), "nope")}, "test", logging.NewNopLogger())
	assert.Error(t, err)
	assert.True(t, errors.IsPreconditionError(err))
}
