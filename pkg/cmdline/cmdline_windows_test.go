//go:build windows

package cmdline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

// CommandLineToArgvW treats a doubled quote inside a quoted run as a literal
// quote that also ends the run, so arguments with whitespace after an
// embedded quote decode differently there than in the C runtime. The cases
// below decode the same way under both rules.
var systemDecodableArguments = []string{
	"",
	"rabbitmq-server",
	"-detached",
	"a b",
	"a\tb",
	`C:\path with space\x.bat`,
	`C:\path with space\`,
	`C:\no_space\`,
	`say "hi"`,
	`space then quote "`,
	`"`,
	`""`,
	`a\"b`,
	`a\\"b`,
	`\"`,
	`\`,
	`\\server\share name\`,
	"ünïcødé ärg",
}

func TestQuoteArgument_DecodedBySystem(t *testing.T) {
	for _, arg := range systemDecodableArguments {
		t.Run(arg, func(t *testing.T) {
			args, err := windows.DecomposeCommandLine("prog " + QuoteArgument(arg))
			require.NoError(t, err)
			assert.Equal(t, []string{"prog", arg}, args)
		})
	}
}

func TestQuoteArguments_DecodedBySystem(t *testing.T) {
	args := []string{`C:\rabbit mq\sbin\rabbitmq-server.bat`, "-detached", "", `x"y`, `C:\dir with space\`}

	decoded, err := windows.DecomposeCommandLine(QuoteArguments(args...))
	require.NoError(t, err)
	assert.Equal(t, args, decoded)
}

func TestSplitCommandLine_AgreesWithSystem(t *testing.T) {
	for _, arg := range systemDecodableArguments {
		t.Run(arg, func(t *testing.T) {
			line := "prog " + QuoteArgument(arg)
			decoded, err := windows.DecomposeCommandLine(line)
			require.NoError(t, err)
			assert.Equal(t, decoded, SplitCommandLine(line))
		})
	}
}
