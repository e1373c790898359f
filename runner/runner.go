// Package runner drives a parsed spec.Specfile against live sessions: it
// resolves each command's session, sends the command, applies its assert
// mode to the result, and reports progress through a Reporter.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shellinspector/shellinspector/log"
	"github.com/shellinspector/shellinspector/session"
	"github.com/shellinspector/shellinspector/sh"
	"github.com/shellinspector/shellinspector/spec"
)

// Runner runs spec.Specfiles against the sessions in Pool, reporting
// progress through Reporter.
type Runner struct {
	log.LoggerInjectable

	Pool     *session.Pool
	Reporter Reporter

	// ScriptHost, if set, handles commands using the script-call execution
	// mode ("!"). Commands of that mode fail with ErrScriptHostRequired if
	// this is nil.
	ScriptHost ScriptHost

	// Context holds process-scoped variables (e.g. SI_TARGET,
	// SI_TARGET_SSH_USERNAME, SI_TARGET_SSH_PORT) exposed to every session
	// alongside a spec file's own Environment.
	Context map[string]string

	// Target is the remote host commands tagged "remote" run against. Nil
	// leaves the tag itself as the dial address, which only makes sense in
	// tests.
	Target *Target

	fixtures *fixtureState
}

// Target identifies the remote end for "remote"-tagged commands.
type Target struct {
	Server string
	Port   int
	User   string
}

// New returns a Runner that pulls sessions from pool and reports to
// reporter. A nil reporter is replaced with a no-op MultiReporter.
func New(pool *session.Pool, reporter Reporter) *Runner {
	if reporter == nil {
		reporter = MultiReporter(nil)
	}
	return &Runner{
		Pool:     pool,
		Reporter: reporter,
		fixtures: newFixtureState(),
	}
}

// usedSessions tracks, for one top-level Run (and any fixture spec-files it
// shares sessions with), which sessions have already had Environment+Context
// applied and PushState called, so that happens exactly once per session
// per run, and so Finalize-time cleanup knows which sessions to PopState.
type usedSessions map[session.SessionKey]session.Session

func (u usedSessions) popAll(ctx context.Context, r *Runner, sf *spec.Specfile) {
	for key, sess := range u {
		if err := sess.PopState(ctx); err != nil {
			r.report(Event{Kind: RunError, Specfile: sf, Session: key, Err: fmt.Errorf("pop_state: %w", err)})
		}
	}
}

func (r *Runner) report(e Event) {
	if r.Reporter != nil {
		r.Reporter.Report(e)
	}
}

// sessionKeyFor maps a command's host tag to a pool key: local commands
// key on ("local", session name) alone, remote ones on the resolved
// target endpoint. Any other host tag is an error.
func (r *Runner) sessionKeyFor(cmd *spec.Command) (session.SessionKey, error) {
	switch cmd.Host {
	case "", "local":
		return session.SessionKey{Host: "local", Name: cmd.SessionName}, nil
	case "remote":
		key := session.SessionKey{Host: cmd.Host, User: cmd.User, Name: cmd.SessionName}
		if r.Target != nil {
			key.Host = r.Target.Server
			key.Port = r.Target.Port
			if key.User == "" {
				key.User = r.Target.User
			}
		}
		return key, nil
	default:
		return session.SessionKey{}, fmt.Errorf("%w: %q", session.ErrUnknownHost, cmd.Host)
	}
}

// Run executes sf: its fixture's pre half (if any), every command in
// order, and its fixture's post half (if FILE-scoped; RUN-scoped posts are
// deferred to Finalize). If sf.Examples is non-empty, Run repeats the
// whole file once per example with AsExample applied, in order; the first
// example's failure does not prevent later examples from running, but
// Run's own returned error reflects whether any example failed.
func (r *Runner) Run(ctx context.Context, sf *spec.Specfile) error {
	if sf.HasErrors() {
		for _, e := range sf.Errors {
			r.report(Event{Kind: RunError, Specfile: sf, Err: e})
		}
		return fmt.Errorf("runner: %s: %d parse error(s)", sf.Path, len(sf.Errors))
	}

	if len(sf.Examples) == 0 {
		return r.runOnce(ctx, sf)
	}

	var firstErr error
	for _, example := range sf.Examples {
		if err := r.runOnce(ctx, sf.AsExample(example)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) runOnce(ctx context.Context, sf *spec.Specfile) error {
	used := make(usedSessions)

	runErr := r.runOnceWithSessions(ctx, sf, used)

	// Cleanup: this runOnce call is always the outermost invocation for sf
	// (fixtures share the caller's set and never reach here directly), so
	// every session touched gets popped back to its pre-spec push depth.
	// Sessions stay open in the pool for reuse by later spec files.
	used.popAll(ctx, r, sf)

	if runErr != nil {
		r.report(Event{Kind: RunFailed, Specfile: sf, Err: runErr})
		return runErr
	}
	r.report(Event{Kind: RunSucceeded, Specfile: sf})
	return nil
}

// runOnceWithSessions runs sf's pre-fixture, commands, and post-fixture
// against the shared used set, without the outermost PopState cleanup
// (that is only correct once, at the true top level).
func (r *Runner) runOnceWithSessions(ctx context.Context, sf *spec.Specfile, used usedSessions) error {
	if err := r.runFixturePre(ctx, sf, used); err != nil {
		r.report(Event{Kind: RunError, Specfile: sf, Err: err})
		return err
	}

	runErr := r.runCommands(ctx, sf, sf.Commands, used)

	if postErr := r.runFixturePost(ctx, sf, used); postErr != nil {
		r.report(Event{Kind: RunError, Specfile: sf, Err: postErr})
		if runErr == nil {
			runErr = postErr
		}
	}

	return runErr
}

// runCommands runs commands in order against sf's environment, stopping at
// the first failure.
func (r *Runner) runCommands(ctx context.Context, sf *spec.Specfile, commands []*spec.Command, used usedSessions) error {
	for _, cmd := range commands {
		if err := r.runCommand(ctx, sf, cmd, used); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runCommand(ctx context.Context, sf *spec.Specfile, cmd *spec.Command, used usedSessions) error {
	key, err := r.sessionKeyFor(cmd)
	if err != nil {
		wrapped := fmt.Errorf("%s:%d: %w", cmd.SourceFile, cmd.SourceLineNo, err)
		r.report(Event{Kind: CommandFailed, Specfile: sf, Command: cmd, Err: wrapped})
		return wrapped
	}

	r.report(Event{Kind: CommandStarting, Specfile: sf, Command: cmd, Session: key})

	sess, err := r.Pool.Get(ctx, key)
	if err != nil {
		wrapped := fmt.Errorf("%s:%d: %w", cmd.SourceFile, cmd.SourceLineNo, err)
		r.report(Event{Kind: CommandFailed, Specfile: sf, Command: cmd, Session: key, Err: wrapped})
		return wrapped
	}

	if cmd.ExecutionMode == spec.ModeScript {
		return r.runScriptCommand(ctx, sf, cmd, key, sess)
	}

	if cmd.IsLogout() {
		if err := r.Pool.Evict(key); err != nil {
			wrapped := fmt.Errorf("%s:%d: logout: %w", cmd.SourceFile, cmd.SourceLineNo, err)
			r.report(Event{Kind: CommandFailed, Specfile: sf, Command: cmd, Session: key, Err: wrapped})
			return wrapped
		}
		delete(used, key)
		r.report(Event{Kind: CommandPassed, Specfile: sf, Command: cmd, Session: key})
		return nil
	}

	if _, ok := used[key]; !ok {
		if err := r.scopeSession(ctx, sf, sess); err != nil {
			wrapped := fmt.Errorf("%s:%d: %w", cmd.SourceFile, cmd.SourceLineNo, err)
			r.report(Event{Kind: CommandFailed, Specfile: sf, Command: cmd, Session: key, Err: wrapped})
			return wrapped
		}
		used[key] = sess
	}

	line := cmd.Command
	if cmd.ExecutionMode == spec.ModeRoot {
		line = sh.CommandBuilder("sudo").Arg("-n").Arg("--").Raw(cmd.Command).String()
	}

	timeout := r.timeoutFor(sf)
	result, err := sess.RunCommand(ctx, line, timeout)
	if err != nil {
		wrapped := fmt.Errorf("%s:%d: %w", cmd.SourceFile, cmd.SourceLineNo, err)
		if errors.Is(err, session.ErrPromptTimeout) {
			// The session closed itself mid-command; surface the partial
			// output it managed to produce. The pool will hand out a fresh
			// session on the next Get for this key.
			var te *session.TimeoutError
			partial := ""
			if errors.As(err, &te) {
				partial = te.Partial
			}
			r.report(Event{Kind: RunError, Specfile: sf, Command: cmd, Session: key, Actual: partial, Err: wrapped})
		} else {
			r.report(Event{Kind: CommandFailed, Specfile: sf, Command: cmd, Session: key, Err: wrapped})
		}
		return wrapped
	}

	if reasons := Assert(cmd, result); len(reasons) > 0 {
		wrapped := fmt.Errorf("%s:%d: %w: %v", cmd.SourceFile, cmd.SourceLineNo, ErrAssertionFailed, reasons)
		r.report(Event{Kind: CommandFailed, Specfile: sf, Command: cmd, Session: key, Actual: result.Output, ReturnCode: result.ExitCode, Reasons: reasons, Err: wrapped})
		return wrapped
	}

	r.report(Event{Kind: CommandPassed, Specfile: sf, Command: cmd, Session: key, Actual: result.Output, ReturnCode: result.ExitCode})
	return nil
}

// scopeSession applies sf's Environment, then the Runner's process-scoped
// Context, and finally pushes a nested shell so this spec file's
// environment and working-directory changes are discarded on cleanup
// without disturbing the session for reuse by later spec files.
func (r *Runner) scopeSession(ctx context.Context, sf *spec.Specfile, sess session.Session) error {
	if len(sf.Environment) > 0 {
		if err := sess.SetEnvironment(ctx, sf.Environment); err != nil {
			return fmt.Errorf("set environment: %w", err)
		}
	}
	if len(r.Context) > 0 {
		if err := sess.SetEnvironment(ctx, r.Context); err != nil {
			return fmt.Errorf("set context: %w", err)
		}
	}
	if err := sess.PushState(ctx); err != nil {
		return fmt.Errorf("push_state: %w", err)
	}
	return nil
}

func (r *Runner) timeoutFor(sf *spec.Specfile) time.Duration {
	seconds := sf.Settings.TimeoutSeconds
	if seconds <= 0 {
		seconds = 5
	}
	return time.Duration(seconds) * time.Second
}

