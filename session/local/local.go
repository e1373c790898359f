// Package local implements session.Session over a PTY-attached local shell
// process.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/shellinspector/shellinspector/log"
	"github.com/shellinspector/shellinspector/session"
	"github.com/shellinspector/shellinspector/session/shellio"
	"github.com/shellinspector/shellinspector/sh"
)

// DefaultShell is the shell binary started for every local session unless
// overridden by the SHELL environment variable.
const DefaultShell = "/bin/bash"

// StateMarkerVar is exported inside every pushed nested shell so PopState
// can detect a test command that exited the scoped shell on its own.
const StateMarkerVar = "SHELLINSPECTOR_PROMPT_STATE"

// Session is a session.Session backed by a local PTY-attached shell
// process, used for commands whose host is "local" or empty.
type Session struct {
	log.LoggerInjectable

	key session.SessionKey

	cmd    *exec.Cmd
	ptmx   *os.File
	reader *shellio.Reader

	prompt shellio.Prompt
	depth  int

	mu     sync.Mutex
	closed bool
}

// New returns a not-yet-logged-in local Session for key.
func New(key session.SessionKey) (session.Session, error) {
	return &Session{key: key}, nil
}

func (s *Session) String() string {
	return s.key.String()
}

// Key implements session.Session.
func (s *Session) Key() session.SessionKey {
	return s.key
}

// Login implements session.Session: it starts the shell under a PTY,
// disables echo, and synchronizes on a unique prompt sentinel so
// RunCommand can reliably tell where one command's output ends.
func (s *Session) Login(ctx context.Context) error {
	shellBin := os.Getenv("SHELL")
	if shellBin == "" {
		shellBin = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shellBin, "--noprofile", "--norc", "-i")
	cmd.Env = append(os.Environ(), "TERM=dumb", "PS1=")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("local: start shell: %w", err)
	}

	// Match the controlling terminal's size when there is one, so commands
	// that consult the terminal width behave as they would interactively.
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
			_ = pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(w), Rows: uint16(h)})
		}
	}

	s.cmd = cmd
	s.ptmx = ptmx
	s.prompt = shellio.NewPrompt()
	s.reader = shellio.NewReader(ptmx, s.prompt)

	if _, err := fmt.Fprintln(s.ptmx, "stty -echo"); err != nil {
		return fmt.Errorf("local: disable echo: %w", err)
	}
	if err := s.setPrompt(); err != nil {
		return fmt.Errorf("local: set prompt: %w", err)
	}
	if _, err := s.reader.WaitForPrompt(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("local: initial prompt sync: %w", err)
	}

	s.Log().Debug("local session ready", log.SessionAttr(s.key))
	return nil
}

func (s *Session) setPrompt() error {
	_, err := fmt.Fprintln(s.ptmx, s.prompt.SetCommand())
	return err
}

// waitForPrompt wraps the reader's wait so a timed-out session is closed
// immediately: its shell is mid-command and cannot be reused.
func (s *Session) waitForPrompt(ctx context.Context, timeout time.Duration) (string, error) {
	out, err := s.reader.WaitForPrompt(ctx, timeout)
	if errors.Is(err, session.ErrPromptTimeout) {
		_ = s.Close()
	}
	return out, err
}

// RunCommand implements session.Session.
func (s *Session) RunCommand(ctx context.Context, command string, timeout time.Duration) (*session.CommandResult, error) {
	if s.Closed() {
		return nil, session.ErrClosed
	}

	start := time.Now()
	if _, err := fmt.Fprintf(s.ptmx, "%s\n", command); err != nil {
		return nil, fmt.Errorf("local: send command: %w", err)
	}

	output, err := s.waitForPrompt(ctx, timeout)
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintln(s.ptmx, "echo $?"); err != nil {
		return nil, fmt.Errorf("local: send exit code query: %w", err)
	}
	rcOut, err := s.waitForPrompt(ctx, timeout)
	if err != nil {
		return nil, err
	}
	rc, convErr := strconv.Atoi(strings.TrimSpace(rcOut))
	if convErr != nil {
		rc = -1
	}

	return &session.CommandResult{
		Output:   output,
		ExitCode: rc,
		Duration: time.Since(start),
	}, nil
}

// SetEnvironment implements session.Session.
func (s *Session) SetEnvironment(ctx context.Context, env map[string]string) error {
	for name, value := range env {
		line := sh.CommandBuilder("export").Arg(name + "=" + value).String()
		if _, err := s.RunCommand(ctx, line, 5*time.Second); err != nil {
			return fmt.Errorf("local: set environment %s: %w", name, err)
		}
	}
	return nil
}

// GetEnvironment implements session.Session by asking the shell to dump
// its exported variables via "export -p".
func (s *Session) GetEnvironment(ctx context.Context) (map[string]string, error) {
	res, err := s.RunCommand(ctx, "export -p", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("local: get environment: %w", err)
	}
	return shellio.ParseExports(res.Output), nil
}

// PushState implements session.Session by entering a nested interactive
// shell, so changes to the environment and working directory can be
// discarded wholesale by PopState. A depth marker is exported inside the
// nested shell so PopState can tell when a test command exited it early.
func (s *Session) PushState(ctx context.Context) error {
	if s.Closed() {
		return session.ErrClosed
	}
	if _, err := fmt.Fprintln(s.ptmx, "bash --noprofile --norc -i"); err != nil {
		return fmt.Errorf("local: push_state: %w", err)
	}
	if err := s.setPrompt(); err != nil {
		return fmt.Errorf("local: push_state: resync prompt: %w", err)
	}
	if _, err := s.waitForPrompt(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("local: push_state: %w", err)
	}
	s.depth++
	if _, err := s.RunCommand(ctx, "export "+StateMarkerVar+"="+strconv.Itoa(s.depth), 5*time.Second); err != nil {
		return fmt.Errorf("local: push_state: set marker: %w", err)
	}
	return nil
}

// PopState implements session.Session. On a closed session it is a no-op;
// the nested shells died with the process.
func (s *Session) PopState(ctx context.Context) error {
	if s.Closed() {
		s.depth = 0
		return nil
	}
	if s.depth == 0 {
		return session.ErrPushStateMismatch
	}

	res, err := s.RunCommand(ctx, "echo $"+StateMarkerVar, 5*time.Second)
	if err != nil {
		return fmt.Errorf("local: pop_state: %w", err)
	}
	if marker := strings.TrimSpace(res.Output); marker != strconv.Itoa(s.depth) {
		return fmt.Errorf("local: pop_state: %w: marker %q at depth %d", session.ErrShellExitedEarly, marker, s.depth)
	}

	if _, err := fmt.Fprintln(s.ptmx, "exit"); err != nil {
		return fmt.Errorf("local: pop_state: %w", err)
	}
	if _, err := s.waitForPrompt(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("local: pop_state: %w", err)
	}
	s.depth--
	return nil
}

// Closed implements session.Session.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements session.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.reader != nil {
		s.reader.Close()
	}
	if s.ptmx != nil {
		_ = s.ptmx.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_, _ = s.cmd.Process.Wait()
	}
	return nil
}
