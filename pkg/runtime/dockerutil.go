package runtime

import (
	"bytes"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/pkg/stdcopy"
)

type dockerFilterArgsBuilder = filters.Args

func buildFilterArgs(labels map[string]string) dockerFilterArgsBuilder {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}
	return args
}

func newDockerFilterArgs(labels map[string]string) dockerFilterArgsBuilder {
	return buildFilterArgs(labels)
}

// demultiplex reads a full stdcopy-framed stream to completion, splitting
// it into its stdout and stderr payloads. Used by Exec, which waits for
// the command to finish before returning a result.
func demultiplex(r io.Reader) (stdout, stderr []byte, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, r); err != nil {
		return nil, nil, err
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), nil
}

// logEntryWriter turns each stdcopy frame written to it into one LogEntry
// on out, tagged with stream.
type logEntryWriter struct {
	out    chan<- LogEntry
	stream LogStream
}

func (w logEntryWriter) Write(p []byte) (int, error) {
	frame := make([]byte, len(p))
	copy(frame, p)
	w.out <- LogEntry{Content: frame, Stream: w.stream}
	return len(p), nil
}

// streamDemuxed reads a stdcopy-framed stream incrementally, emitting one
// LogEntry per frame until the stream closes. Used by Logs, which may run
// indefinitely when opts.Follow is set.
func streamDemuxed(r io.Reader, out chan<- LogEntry, _ bool) {
	_, _ = stdcopy.StdCopy(logEntryWriter{out: out, stream: StreamStdout}, logEntryWriter{out: out, stream: StreamStderr}, r)
}
