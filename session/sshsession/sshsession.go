// Package sshsession implements session.Session over a PTY-attached shell
// on a remote host reached via SSH.
package sshsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/shellinspector/shellinspector/log"
	"github.com/shellinspector/shellinspector/retry"
	"github.com/shellinspector/shellinspector/session"
	"github.com/shellinspector/shellinspector/session/shellio"
	"github.com/shellinspector/shellinspector/sh"
)

// DefaultKeyPaths are tried, in order, when no explicit key path is
// configured. Keys read from them are offered after any ssh-agent keys.
var DefaultKeyPaths = []string{"~/.ssh/id_ed25519", "~/.ssh/id_rsa", "~/.ssh/id_ecdsa"}

// StateMarkerVar is exported inside every pushed nested shell so PopState
// can detect a test command that exited the scoped shell on its own.
const StateMarkerVar = "SHELLINSPECTOR_PROMPT_STATE"

// Config configures how sessions for a given remote host are dialed.
type Config struct {
	// KeyPath, if set, is used instead of DefaultKeyPaths. Keys from the
	// ssh-agent are still offered first.
	KeyPath string
	// DialTimeout bounds a single TCP+handshake attempt.
	DialTimeout time.Duration
	// DialRetries is how many additional attempts are made after the
	// first failed dial, with backoff between them.
	DialRetries int
}

// NewFactory returns a session.Factory that dials remote hosts per cfg. The
// host key is not verified: shellinspector targets ephemeral,
// test-purposed hosts rather than hardened fleets, so host key pinning is
// out of scope (see DESIGN.md).
func NewFactory(cfg Config) session.Factory {
	return func(key session.SessionKey) (session.Session, error) {
		return &Session{key: key, cfg: cfg}, nil
	}
}

// Session is a session.Session backed by an SSH connection and a single
// remote PTY shell.
type Session struct {
	log.LoggerInjectable

	key session.SessionKey
	cfg Config

	client  *ssh.Client
	sshSess *ssh.Session
	stdin   io.WriteCloser
	reader  *shellio.Reader

	prompt shellio.Prompt
	depth  int

	mu     sync.Mutex
	closed bool
}

func (s *Session) String() string {
	return s.key.String()
}

// Key implements session.Session.
func (s *Session) Key() session.SessionKey {
	return s.key
}

func (s *Session) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if conn, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK")); err == nil {
		ag := agent.NewClient(conn)
		if signers, err := ag.Signers(); err == nil && len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	keyPaths := DefaultKeyPaths
	if s.cfg.KeyPath != "" {
		keyPaths = []string{s.cfg.KeyPath}
	}
	for _, p := range keyPaths {
		expanded, err := homedir.Expand(p)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			s.Log().Debug("skipping unusable key", log.FileAttr(expanded), log.ErrorAttr(err))
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, errors.New("sshsession: no usable authentication method found")
	}
	return methods, nil
}

// Login dials the remote host, requests a PTY-attached shell, and
// synchronizes on a unique prompt sentinel.
func (s *Session) Login(ctx context.Context) error {
	methods, err := s.authMethods()
	if err != nil {
		return err
	}

	clientConfig := &ssh.ClientConfig{
		User:            s.key.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         s.dialTimeout(),
	}

	port := s.key.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(s.key.Host, strconv.Itoa(port))

	client, err := s.dialWithRetry(ctx, addr, clientConfig)
	if err != nil {
		return fmt.Errorf("sshsession: dial %s: %w", addr, err)
	}
	s.client = client

	sshSess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("sshsession: new session: %w", err)
	}
	s.sshSess = sshSess

	if err := sshSess.RequestPty("dumb", 40, 200, ssh.TerminalModes{ssh.ECHO: 0}); err != nil {
		return fmt.Errorf("sshsession: request pty: %w", err)
	}

	stdout, err := sshSess.StdoutPipe()
	if err != nil {
		return fmt.Errorf("sshsession: stdout pipe: %w", err)
	}
	stdin, err := sshSess.StdinPipe()
	if err != nil {
		return fmt.Errorf("sshsession: stdin pipe: %w", err)
	}
	s.stdin = stdin

	if err := sshSess.Shell(); err != nil {
		return fmt.Errorf("sshsession: start shell: %w", err)
	}

	s.prompt = shellio.NewPrompt()
	s.reader = shellio.NewReader(stdout, s.prompt)

	if err := s.setPrompt(); err != nil {
		return fmt.Errorf("sshsession: set prompt: %w", err)
	}
	if _, err := s.reader.WaitForPrompt(ctx, 10*time.Second); err != nil {
		return fmt.Errorf("sshsession: initial prompt sync: %w", err)
	}

	s.Log().Debug("ssh session ready", log.SessionAttr(s.key))
	return nil
}

func (s *Session) dialTimeout() time.Duration {
	if s.cfg.DialTimeout > 0 {
		return s.cfg.DialTimeout
	}
	return 10 * time.Second
}

func (s *Session) dialWithRetry(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	return retry.GetWithContext(ctx, func(_ context.Context) (*ssh.Client, error) {
		return ssh.Dial("tcp", addr, cfg)
	}, retry.MaxRetries(s.cfg.DialRetries+1), retry.Delay(time.Second), retry.Backoff(1.5))
}

func (s *Session) setPrompt() error {
	_, err := fmt.Fprintln(s.stdin, s.prompt.SetCommand())
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
	if _, err := fmt.Fprintf(s.stdin, "%s\n", command); err != nil {
		return nil, fmt.Errorf("sshsession: send command: %w", err)
	}
	output, err := s.waitForPrompt(ctx, timeout)
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintln(s.stdin, "echo $?"); err != nil {
		return nil, fmt.Errorf("sshsession: send exit code query: %w", err)
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
			return fmt.Errorf("sshsession: set environment %s: %w", name, err)
		}
	}
	return nil
}

// GetEnvironment implements session.Session.
func (s *Session) GetEnvironment(ctx context.Context) (map[string]string, error) {
	res, err := s.RunCommand(ctx, "export -p", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("sshsession: get environment: %w", err)
	}
	return shellio.ParseExports(res.Output), nil
}

// PushState implements session.Session.
func (s *Session) PushState(ctx context.Context) error {
	if s.Closed() {
		return session.ErrClosed
	}
	if _, err := fmt.Fprintln(s.stdin, "bash --noprofile --norc -i"); err != nil {
		return fmt.Errorf("sshsession: push_state: %w", err)
	}
	if err := s.setPrompt(); err != nil {
		return fmt.Errorf("sshsession: push_state: resync prompt: %w", err)
	}
	if _, err := s.waitForPrompt(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("sshsession: push_state: %w", err)
	}
	s.depth++
	if _, err := s.RunCommand(ctx, "export "+StateMarkerVar+"="+strconv.Itoa(s.depth), 5*time.Second); err != nil {
		return fmt.Errorf("sshsession: push_state: set marker: %w", err)
	}
	return nil
}

// PopState implements session.Session. On a closed session it is a no-op;
// the nested shells died with the connection.
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
		return fmt.Errorf("sshsession: pop_state: %w", err)
	}
	if marker := strings.TrimSpace(res.Output); marker != strconv.Itoa(s.depth) {
		return fmt.Errorf("sshsession: pop_state: %w: marker %q at depth %d", session.ErrShellExitedEarly, marker, s.depth)
	}

	if _, err := fmt.Fprintln(s.stdin, "exit"); err != nil {
		return fmt.Errorf("sshsession: pop_state: %w", err)
	}
	if _, err := s.waitForPrompt(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("sshsession: pop_state: %w", err)
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
	if s.sshSess != nil {
		_ = s.sshSess.Close()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	return nil
}
