package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shellinspector/shellinspector/session"
	"github.com/shellinspector/shellinspector/spec"
)

// ErrScriptHostRequired is returned when a command uses the script-call
// execution mode ("!") but the Runner has no ScriptHost configured.
var ErrScriptHostRequired = errors.New("runner: script command requires a ScriptHost")

// ErrOneStatementRequired is returned by ParseScriptCall when the command
// text spans more than one line. Several statements on a single line are
// rejected with ErrCallExprRequired instead.
var ErrOneStatementRequired = errors.New("runner: script command must be a single statement")

// ErrCallExprRequired is returned by ParseScriptCall when the command text
// is not a bare "name(arg, ...)" call expression.
var ErrCallExprRequired = errors.New("runner: script command must be a function call")

// ScriptContext is the shared state handed to an embedded script call: the
// example mapping applied to the spec file and a mutable snapshot of the
// session's environment. Changes the script makes to Env are written back
// to the session when the call reports success.
type ScriptContext struct {
	AppliedExample map[string]string
	Env            map[string]string
}

// ScriptHost hands a "!" command line off to an embedder-supplied
// interpreter, for assertions that need host-language logic (e.g.
// comparing against computed state) rather than a literal shell command.
type ScriptHost interface {
	// CallScript evaluates call, a single "name(arg, ...)" expression,
	// within the script file at path, injecting sctx as the call's first
	// argument. ok reports whether the call returned true; message carries
	// the string form of the return value when it did not. err is reserved
	// for host-level failures (unreadable file, invalid call shape).
	CallScript(ctx context.Context, path string, call string, sctx *ScriptContext) (ok bool, message string, err error)
}

// ScriptFile derives the auxiliary script file path for a spec file:
// "name.ispec" maps to "name.ispec.py".
func ScriptFile(specPath string) string {
	return specPath + ".py"
}

var scriptCallRE = regexp.MustCompile(`^(\w+)\(([^()]*)\)$`)

// ParseScriptCall validates that line is a single "name(arg, ...)" call
// expression and splits it into its function name and comma-separated,
// whitespace-trimmed arguments.
func ParseScriptCall(line string) (name string, args []string, err error) {
	line = strings.TrimSpace(line)
	if strings.Contains(line, "\n") {
		return "", nil, ErrOneStatementRequired
	}

	m := scriptCallRE.FindStringSubmatch(line)
	if m == nil {
		return "", nil, ErrCallExprRequired
	}

	name = m[1]
	rawArgs := strings.TrimSpace(m[2])
	if rawArgs == "" {
		return name, nil, nil
	}
	for _, a := range strings.Split(rawArgs, ",") {
		args = append(args, strings.TrimSpace(a))
	}
	return name, args, nil
}

// runScriptCommand executes a "!" command: it snapshots the session's
// environment, hands the call to the ScriptHost with that snapshot, and on
// success writes the script's environment changes back to the session.
func (r *Runner) runScriptCommand(ctx context.Context, sf *spec.Specfile, cmd *spec.Command, key session.SessionKey, sess session.Session) error {
	fail := func(message string, err error) error {
		wrapped := fmt.Errorf("%s:%d: %w", cmd.SourceFile, cmd.SourceLineNo, err)
		r.report(Event{Kind: CommandFailed, Specfile: sf, Command: cmd, Session: key, Message: message, Err: wrapped})
		return wrapped
	}

	if r.ScriptHost == nil {
		return fail("", ErrScriptHostRequired)
	}
	if _, _, err := ParseScriptCall(cmd.Command); err != nil {
		return fail("", err)
	}

	oldEnv, err := sess.GetEnvironment(ctx)
	if err != nil {
		return fail("", fmt.Errorf("script environment snapshot: %w", err))
	}

	sctx := &ScriptContext{
		AppliedExample: sf.AppliedExample,
		Env:            make(map[string]string, len(oldEnv)),
	}
	for k, v := range oldEnv {
		sctx.Env[k] = v
	}

	ok, message, err := r.ScriptHost.CallScript(ctx, ScriptFile(sf.Path), cmd.Command, sctx)
	if err != nil {
		return fail("", err)
	}
	if !ok {
		return fail(message, fmt.Errorf("%w: %s", ErrScriptFailed, message))
	}

	diff := make(map[string]string)
	for k, v := range sctx.Env {
		if old, had := oldEnv[k]; !had || old != v {
			diff[k] = v
		}
	}
	if len(diff) > 0 {
		if err := sess.SetEnvironment(ctx, diff); err != nil {
			return fail("", fmt.Errorf("apply script environment: %w", err))
		}
	}

	r.report(Event{Kind: CommandPassed, Specfile: sf, Command: cmd, Session: key})
	return nil
}
