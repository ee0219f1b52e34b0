// Package cmdline builds and splits Windows-style command lines.
//
// Windows passes a child process a single command line string which the
// child's C runtime splits back into argv. The rules applied here are the
// ones used by the Microsoft C runtime since 2008:
//
//   - space and tab separate arguments outside of a quoted run;
//   - a double quote starts or ends a quoted run;
//   - inside a quoted run, two consecutive double quotes produce one literal
//     double quote;
//   - 2n backslashes followed by a double quote produce n backslashes and the
//     quote is interpreted as above;
//   - 2n+1 backslashes followed by a double quote produce n backslashes and a
//     literal double quote;
//   - backslashes not followed by a double quote are literal.
package cmdline

import (
	"strings"
)

// needsQuoting lists the characters that force an argument into a quoted run.
const needsQuoting = "\" \t\n\v"

// QuoteArgument returns arg as a single command line token that
// SplitCommandLine decodes back to arg.
func QuoteArgument(arg string) string {
	var b strings.Builder
	appendArgument(&b, arg)
	return b.String()
}

// QuoteArguments quotes every argument and joins the tokens with one space.
func QuoteArguments(args ...string) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		appendArgument(&b, arg)
	}
	return b.String()
}

func appendArgument(b *strings.Builder, arg string) {
	if arg == "" {
		b.WriteString(`""`)
		return
	}
	if !strings.ContainsAny(arg, needsQuoting) {
		b.WriteString(arg)
		return
	}

	b.WriteByte('"')
	backslashes := 0
	for i := 0; i < len(arg); i++ {
		c := arg[i]
		switch c {
		case '\\':
			backslashes++
			continue
		case '"':
			// backslashes in front of a quote are an escape sequence, so
			// double them to keep them literal
			writeBackslashes(b, backslashes*2)
			b.WriteString(`""`)
		default:
			writeBackslashes(b, backslashes)
			b.WriteByte(c)
		}
		backslashes = 0
	}
	// same for the closing quote
	writeBackslashes(b, backslashes*2)
	b.WriteByte('"')
}

func writeBackslashes(b *strings.Builder, n int) {
	for i := 0; i < n; i++ {
		b.WriteByte('\\')
	}
}

// SplitCommandLine decodes a command line into argv.
func SplitCommandLine(line string) []string {
	args := []string{}

	var current strings.Builder
	inArgument := false
	inQuotes := false

	for i := 0; i < len(line); {
		c := line[i]

		if !inQuotes && (c == ' ' || c == '\t') {
			if inArgument {
				args = append(args, current.String())
				current.Reset()
				inArgument = false
			}
			i++
			continue
		}

		inArgument = true

		switch c {
		case '\\':
			j := i
			for j < len(line) && line[j] == '\\' {
				j++
			}
			count := j - i
			if j < len(line) && line[j] == '"' {
				writeBackslashes(&current, count/2)
				if count%2 == 1 {
					current.WriteByte('"')
					j++
				}
			} else {
				writeBackslashes(&current, count)
			}
			i = j
		case '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i += 2
				continue
			}
			inQuotes = !inQuotes
			i++
		default:
			current.WriteByte(c)
			i++
		}
	}

	if inArgument {
		args = append(args, current.String())
	}
	return args
}
