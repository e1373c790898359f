package runner

import (
	"regexp"

	"github.com/shellinspector/shellinspector/session"
	"github.com/shellinspector/shellinspector/spec"
)

// EventKind categorizes the Events a Runner emits over the course of Run.
type EventKind int

const (
	// CommandStarting is emitted right before a command is sent to its
	// session.
	CommandStarting EventKind = iota
	// CommandPassed is emitted once a command's output satisfied its
	// assert mode.
	CommandPassed
	// CommandFailed is emitted once a command's output failed its assert
	// mode, or the command itself could not be run.
	CommandFailed
	// RunError is emitted for problems outside a command's pass/fail
	// verdict: parse errors, a failed fixture half, a failed PopState on
	// cleanup, and a prompt timeout while a command runs. A session that
	// could not be established is reported as CommandFailed.
	RunError
	// RunSucceeded is emitted once every command in a Run call has
	// passed.
	RunSucceeded
	// RunFailed is emitted once any command in a Run call has failed.
	RunFailed
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case CommandStarting:
		return "COMMAND_STARTING"
	case CommandPassed:
		return "COMMAND_PASSED"
	case CommandFailed:
		return "COMMAND_FAILED"
	case RunError:
		return "ERROR"
	case RunSucceeded:
		return "RUN_SUCCEEDED"
	case RunFailed:
		return "RUN_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Event reports one step of a Run call's progress to a Reporter.
type Event struct {
	Kind     EventKind
	Specfile *spec.Specfile
	Command  *spec.Command
	Session  session.SessionKey
	Actual   string
	// ReturnCode is the command's exit status, set on CommandPassed and
	// CommandFailed events for normal (non-script, non-logout) commands.
	ReturnCode int
	// Reasons lists every failing condition on a CommandFailed event for a
	// normal command, drawn from {"output", "returncode"}.
	Reasons []string
	// Message carries a script-mode command's non-true return value on a
	// CommandFailed event.
	Message string
	Err     error
}

var envTokenRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// RenderLine substitutes ${NAME} tokens in cmd's original source line with
// the session environment's current values, for reporting. Unknown names
// are left untouched.
func RenderLine(cmd *spec.Command, env map[string]string) string {
	return envTokenRE.ReplaceAllStringFunc(cmd.Line, func(tok string) string {
		if v, ok := env[tok[2:len(tok)-1]]; ok {
			return v
		}
		return tok
	})
}

// Reporter receives Events as a Run call progresses. Implementations must
// not block the Runner for long, since Report is called synchronously from
// the command loop.
type Reporter interface {
	Report(Event)
}

// MultiReporter broadcasts every Event to each of its members in order.
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// ChannelReporter sends every Event to an underlying channel. Report drops
// the event rather than blocking if the channel's buffer is full and
// nothing is receiving.
type ChannelReporter chan Event

// Report implements Reporter.
func (c ChannelReporter) Report(e Event) {
	select {
	case c <- e:
	default:
	}
}
