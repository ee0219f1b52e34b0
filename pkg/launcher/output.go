package launcher

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"
)

// StreamType identifies the host process stream a line came from
type StreamType int

const (
	StreamStdout StreamType = iota
	StreamStderr
)

func (s StreamType) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// OutputSink receives the broker output one complete line at a time. Lines
// from both streams may arrive concurrently; implementations must be safe
// for concurrent use.
type OutputSink interface {
	WriteLine(node string, stream StreamType, line string)
}

// SinkFunc adapts a function to OutputSink
type SinkFunc func(node string, stream StreamType, line string)

func (f SinkFunc) WriteLine(node string, stream StreamType, line string) {
	f(node, stream, line)
}

type writerSink struct {
	mutex  sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

// NewWriterSink writes "<node>: <line>" to stdout or stderr depending on the
// stream. A nil stderr shares stdout. Each line is written atomically.
func NewWriterSink(stdout, stderr io.Writer) OutputSink {
	if stderr == nil {
		stderr = stdout
	}
	return &writerSink{stdout: stdout, stderr: stderr}
}

func (s *writerSink) WriteLine(node string, stream StreamType, line string) {
	out := s.stdout
	if stream == StreamStderr {
		out = s.stderr
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	fmt.Fprintf(out, "%s: %s\n", node, line)
}

type loggerSink struct {
	logger logging.Logger
}

// NewLoggerSink forwards stdout lines at info level and stderr lines at
// warn level
func NewLoggerSink(logger logging.Logger) OutputSink {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &loggerSink{logger: logger}
}

func (s *loggerSink) WriteLine(node string, stream StreamType, line string) {
	if stream == StreamStderr {
		s.logger.Warnf("%s: %s", node, line)
		return
	}
	s.logger.Infof("%s: %s", node, line)
}

const maxLineLength = 64 * 1024

// lineWriter splits a byte stream into lines for an OutputSink. It is the
// io.Writer handed to exec.Cmd, so the copy goroutine of os/exec keeps the
// pipe drained no matter how slow the sink is relative to the broker.
type lineWriter struct {
	mutex  sync.Mutex
	sink   OutputSink
	node   string
	stream StreamType
	buf    []byte
}

func newLineWriter(sink OutputSink, node string, stream StreamType) *lineWriter {
	return &lineWriter{sink: sink, node: node, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}

	// a line without terminator this long is flushed as is
	if len(w.buf) >= maxLineLength {
		w.emit(w.buf)
		w.buf = nil
	}

	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Flush emits a trailing unterminated line
func (w *lineWriter) Flush() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if len(w.buf) > 0 {
		w.emit(w.buf)
	}
	w.buf = nil
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	w.sink.WriteLine(w.node, w.stream, string(line))
}
