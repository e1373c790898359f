// Package sessiontest provides a fake session.Session implementation for
// tests that exercise the runner package without spawning real shells.
// Responses are dispatched to regular-expression matchers in the order
// they were added, the first match wins.
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/shellinspector/shellinspector/session"
)

// ErrNoMatcher is returned by RunCommand when no matcher's pattern matches
// the command and no DefaultResponder has been set.
var ErrNoMatcher = errors.New("sessiontest: no matcher for command")

// Responder produces a CommandResult (or error) for a command that matched
// its associated pattern.
type Responder func(command string) (*session.CommandResult, error)

type matcher struct {
	pattern *regexp.Regexp
	respond Responder
}

// Session is a scripted fake implementing session.Session.
type Session struct {
	key session.SessionKey

	mu             sync.Mutex
	matchers       []matcher
	defaultRespond Responder
	env            map[string]string
	pushDepth      int
	closed         bool

	Calls []string
}

// New returns a fake session for key with no matchers configured.
func New(key session.SessionKey) *Session {
	return &Session{key: key, env: make(map[string]string)}
}

// Factory adapts a map of pre-built fakes into a session.Factory, so tests
// can wire a session.Pool whose sessions are already scripted per key.
func Factory(sessions map[session.SessionKey]*Session) session.Factory {
	return func(key session.SessionKey) (session.Session, error) {
		if s, ok := sessions[key]; ok {
			return s, nil
		}
		return nil, fmt.Errorf("sessiontest: no fake session configured for %s", key)
	}
}

// Add registers a responder for commands matching pattern (a regexp, as in
// regexp.MustCompile). Returns the receiver for chaining.
func (s *Session) Add(pattern string, respond Responder) *Session {
	s.matchers = append(s.matchers, matcher{pattern: regexp.MustCompile(pattern), respond: respond})
	return s
}

// AddOutput is a convenience over Add for the common case of a fixed
// output and exit code.
func (s *Session) AddOutput(pattern, output string, exitCode int) *Session {
	return s.Add(pattern, func(string) (*session.CommandResult, error) {
		return &session.CommandResult{Output: output, ExitCode: exitCode}, nil
	})
}

// SetDefault sets the responder used when no matcher's pattern matches.
func (s *Session) SetDefault(respond Responder) *Session {
	s.defaultRespond = respond
	return s
}

func (s *Session) String() string {
	return s.key.String()
}

// Key implements session.Session.
func (s *Session) Key() session.SessionKey {
	return s.key
}

// Login implements session.Session; it is always a no-op success.
func (s *Session) Login(_ context.Context) error {
	return nil
}

// RunCommand implements session.Session by dispatching to the first
// matching Responder.
func (s *Session) RunCommand(_ context.Context, command string, _ time.Duration) (*session.CommandResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, session.ErrClosed
	}
	s.Calls = append(s.Calls, command)
	s.mu.Unlock()

	for _, m := range s.matchers {
		if m.pattern.MatchString(command) {
			return m.respond(command)
		}
	}
	if s.defaultRespond != nil {
		return s.defaultRespond(command)
	}
	return nil, fmt.Errorf("%w: %q", ErrNoMatcher, command)
}

// SetEnvironment implements session.Session by recording the values in an
// in-memory map, observable via GetEnvironment.
func (s *Session) SetEnvironment(_ context.Context, env map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range env {
		s.env[k] = v
	}
	return nil
}

// GetEnvironment implements session.Session.
func (s *Session) GetEnvironment(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.env))
	for k, v := range s.env {
		out[k] = v
	}
	return out, nil
}

// PushState implements session.Session by bumping a depth counter; no
// actual isolation is simulated.
func (s *Session) PushState(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushDepth++
	return nil
}

// PopState implements session.Session. Like the real implementations it is
// a no-op on a closed session.
func (s *Session) PopState(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.pushDepth = 0
		return nil
	}
	if s.pushDepth == 0 {
		return session.ErrPushStateMismatch
	}
	s.pushDepth--
	return nil
}

// Close implements session.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed implements session.Session and doubles as a test assertion
// helper.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PushDepth reports the current nested-shell depth, for test assertions
// that a Runner's PushState/PopState calls balanced out.
func (s *Session) PushDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushDepth
}
