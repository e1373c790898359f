// Package session defines the interactive-shell abstraction that the
// runner drives: a live local or remote shell process that a command can be
// sent to and a prompt-delimited reply read back from, plus a pool that
// keys open sessions by host/user/name so that multiple spec files can
// share one live shell.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Sentinel errors returned by Session implementations and the Pool.
var (
	// ErrPromptTimeout is returned when a command's output does not settle
	// behind the session's unique prompt sentinel before the deadline.
	ErrPromptTimeout = errors.New("session: timed out waiting for prompt")

	// ErrUnknownHost is returned by a Pool when it is asked for a session
	// keyed to a host it has no factory for.
	ErrUnknownHost = errors.New("session: unknown host")

	// ErrPushStateMismatch is returned by PopState when called without a
	// matching prior PushState.
	ErrPushStateMismatch = errors.New("session: pop_state without matching push_state")

	// ErrClosed is returned by any operation attempted on a session whose
	// Close has already been called.
	ErrClosed = errors.New("session: use of closed session")

	// ErrShellExitedEarly is returned by PopState when the nested-shell
	// marker variable no longer matches the expected depth, meaning a test
	// command exited the scoped shell on its own.
	ErrShellExitedEarly = errors.New("session: test shell was exited early")
)

// TimeoutError is returned when a prompt wait times out. It carries
// whatever partial output had accumulated before the deadline, and unwraps
// to ErrPromptTimeout.
type TimeoutError struct {
	Partial string
}

func (e *TimeoutError) Error() string {
	return ErrPromptTimeout.Error()
}

func (e *TimeoutError) Unwrap() error {
	return ErrPromptTimeout
}

// CommandResult is the outcome of running one command line through a
// session.
type CommandResult struct {
	// Output is the combined stdout+stderr text produced by the command,
	// with the trailing prompt sentinel stripped.
	Output string
	// ExitCode is the command's exit status, as reported by the shell's
	// status variable.
	ExitCode int
	// Duration is how long the command took to return control to the
	// prompt.
	Duration time.Duration
}

// SessionKey identifies one pooled interactive shell. Two commands that
// resolve to the same SessionKey share the same live shell process.
type SessionKey struct {
	Host string
	Port int
	User string
	Name string
}

// IsLocal reports whether the key refers to a local shell rather than a
// remote one.
func (k SessionKey) IsLocal() bool {
	return k.Host == "" || k.Host == "local"
}

// String returns a printable form suitable for logging, of the form
// "user@host:port[name]" or "local[name]".
func (k SessionKey) String() string {
	name := k.Name
	if name == "" {
		name = "default"
	}
	if k.IsLocal() {
		return fmt.Sprintf("local[%s]", name)
	}
	port := k.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s@%s[%s]", k.User, net.JoinHostPort(k.Host, fmt.Sprint(port)), name)
}

// Session is a live interactive shell, local or remote, that commands can
// be run against one at a time.
type Session interface {
	fmt.Stringer

	// Key returns the SessionKey this session was created for.
	Key() SessionKey

	// Login prepares the session for use: starts the underlying shell
	// process, disables echo, and synchronizes on a unique prompt
	// sentinel so later output can be reliably delimited.
	Login(ctx context.Context) error

	// RunCommand sends a single command line to the shell and blocks until
	// the prompt sentinel reappears or timeout elapses.
	RunCommand(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error)

	// SetEnvironment exports the given variables into the running shell so
	// that subsequent commands can see them.
	SetEnvironment(ctx context.Context, env map[string]string) error

	// GetEnvironment returns every variable currently exported in the
	// running shell.
	GetEnvironment(ctx context.Context) (map[string]string, error)

	// PushState starts a nested shell, so that environment changes and
	// working-directory changes made within it can be discarded by a
	// matching PopState.
	PushState(ctx context.Context) error

	// PopState exits the most recently pushed nested shell. It is an error
	// to call PopState without a corresponding PushState.
	PopState(ctx context.Context) error

	// Closed reports whether the session is no longer usable, either
	// because Close was called or because a prompt timeout forced it shut.
	Closed() bool

	// Close terminates the underlying shell process and releases its
	// resources. It is safe to call Close more than once.
	Close() error
}

// Factory creates a new, not-yet-logged-in Session for key.
type Factory func(key SessionKey) (Session, error)

// Pool keeps at most one live Session per SessionKey alive at a time, so
// that a spec run and its fixtures can share shells across commands and
// across spec files within the same process.
type Pool struct {
	mu       sync.Mutex
	sessions map[SessionKey]Session

	// LocalFactory creates sessions for local SessionKeys.
	LocalFactory Factory
	// RemoteFactory creates sessions for non-local SessionKeys.
	RemoteFactory Factory
}

// NewPool returns a Pool that dispatches to localFactory or remoteFactory
// depending on whether a requested key is local.
func NewPool(localFactory, remoteFactory Factory) *Pool {
	return &Pool{
		sessions:      make(map[SessionKey]Session),
		LocalFactory:  localFactory,
		RemoteFactory: remoteFactory,
	}
}

// Get returns the pooled session for key, creating and logging it in if
// this is the first request for that key or the existing session has been
// closed (for example by a prompt timeout).
func (p *Pool) Get(ctx context.Context, key SessionKey) (Session, error) {
	p.mu.Lock()
	if s, ok := p.sessions[key]; ok {
		if !s.Closed() {
			p.mu.Unlock()
			return s, nil
		}
		delete(p.sessions, key)
	}
	p.mu.Unlock()

	factory := p.RemoteFactory
	if key.IsLocal() {
		factory = p.LocalFactory
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, key)
	}

	s, err := factory(key)
	if err != nil {
		return nil, fmt.Errorf("session: create %s: %w", key, err)
	}
	if err := s.Login(ctx); err != nil {
		return nil, fmt.Errorf("session: login %s: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.sessions[key]; ok {
		// Lost the race with a concurrent Get for the same key: close the
		// redundant session and return the winner's.
		_ = s.Close()
		return existing, nil
	}
	p.sessions[key] = s
	return s, nil
}

// Evict closes and forgets the pooled session for key, if any, so the next
// Get for that key starts a fresh session. Used to implement the "logout"
// sentinel command.
func (p *Pool) Evict(key SessionKey) error {
	p.mu.Lock()
	s, ok := p.sessions[key]
	if ok {
		delete(p.sessions, key)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

// Close pops every live session back to its pre-push state, then closes it,
// so as not to surprise the outer shell if any. Popping stops at the first
// PopState error, which is not reported; every Close error is collected and
// returned rather than stopping at the first.
func (p *Pool) Close() error {
	p.mu.Lock()
	sessions := make([]Session, 0, len(p.sessions))
	for k, s := range p.sessions {
		sessions = append(sessions, s)
		delete(p.sessions, k)
	}
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		// PopState until the session reports it has nothing left to pop;
		// a leftover stack here only happens if a Runner failed mid-run
		// without reaching its own cleanup.
		for !s.Closed() {
			if err := s.PopState(context.Background()); err != nil {
				break
			}
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
