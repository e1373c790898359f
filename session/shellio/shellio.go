// Package shellio contains the low-level plumbing shared by the local and
// SSH session implementations: unique prompt sentinels, prompt-delimited
// reading of interactive shell output, and parsing of `export -p` dumps.
package shellio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"
	shellwords "github.com/kballard/go-shellquote"

	"github.com/shellinspector/shellinspector/session"
)

// Prompt is the unique high-entropy sentinel a session installs as its
// shell prompt so command output can be delimited reliably.
type Prompt struct {
	value string
}

// NewPrompt returns a new random Prompt.
func NewPrompt() Prompt {
	return Prompt{value: "SI-PROMPT-" + uuid.NewString()}
}

func (p Prompt) String() string {
	return p.value
}

// SetCommand returns the shell command that installs the prompt. The
// sentinel is split across two adjacent quoted strings, so a shell that
// echoes its input never produces the sentinel verbatim before the real
// prompt appears.
func (p Prompt) SetCommand() string {
	mid := len(p.value) / 2
	return "PS1='" + p.value[:mid] + "''" + p.value[mid:] + "'"
}

// Reader consumes a shell's combined output stream and splits it at
// occurrences of the prompt sentinel. It is not safe for concurrent use;
// the session design is strictly sequential.
type Reader struct {
	prompt Prompt
	chunks chan []byte
	errs   chan error
	done   chan struct{}
	buf    []byte
}

// NewReader starts pumping src in the background and returns a Reader
// ready for WaitForPrompt calls.
func NewReader(src io.Reader, prompt Prompt) *Reader {
	r := &Reader{
		prompt: prompt,
		chunks: make(chan []byte, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go r.pump(src)
	return r
}

func (r *Reader) pump(src io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case r.chunks <- data:
			case <-r.done:
				return
			}
		}
		if err != nil {
			select {
			case r.errs <- err:
			case <-r.done:
			}
			return
		}
	}
}

// Close stops the background pump. The underlying stream is not closed;
// that is the owning session's job.
func (r *Reader) Close() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// WaitForPrompt blocks until the prompt sentinel appears in the output
// stream, the stream errors out, or timeout elapses. On success it returns
// everything read before the sentinel, ANSI-stripped and with CRLF
// normalized to LF. On timeout it returns a *session.TimeoutError carrying
// whatever partial output had accumulated.
func (r *Reader) WaitForPrompt(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if idx := bytes.Index(r.buf, []byte(r.prompt.value)); idx >= 0 {
			out := Normalize(string(r.buf[:idx]))
			r.buf = append([]byte(nil), r.buf[idx+len(r.prompt.value):]...)
			return out, nil
		}

		select {
		case data := <-r.chunks:
			r.buf = append(r.buf, data...)
		case err := <-r.errs:
			partial := Normalize(string(r.buf))
			r.buf = nil
			return partial, fmt.Errorf("shellio: read: %w", err)
		case <-timer.C:
			partial := Normalize(string(r.buf))
			r.buf = nil
			return "", &session.TimeoutError{Partial: partial}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Normalize strips ANSI escape sequences and normalizes CRLF (and stray
// CR) line endings to LF.
func Normalize(s string) string {
	s = stripansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// ParseExports parses the output of `export -p` (or plain `export`) into a
// map, stripping the `declare -x `/`export ` prefixes, shell-unquoting the
// values and dropping entries without a value.
func ParseExports(output string) map[string]string {
	env := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "declare -x ")
		line = strings.TrimPrefix(line, "export ")
		if line == "" {
			continue
		}
		fields, err := shellwords.Split(line)
		if err != nil || len(fields) == 0 {
			continue
		}
		kv := strings.SplitN(fields[0], "=", 2)
		if len(kv) != 2 {
			continue
		}
		env[kv[0]] = kv[1]
	}
	return env
}
