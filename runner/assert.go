package runner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shellinspector/shellinspector/session"
	"github.com/shellinspector/shellinspector/spec"
)

// AssertOutput compares actual against cmd's recorded expectation according
// to cmd.AssertMode: for AssertLiteral an exact match once trailing newlines
// are trimmed from both sides, a regular-expression search for AssertRegex,
// and an automatic pass for AssertIgnore. Assert combines this output verdict
// with the exit status.
func AssertOutput(cmd *spec.Command, actual string) error {
	switch cmd.AssertMode {
	case spec.AssertIgnore:
		return nil

	case spec.AssertRegex:
		re, err := regexp.Compile(cmd.Expected)
		if err != nil {
			return fmt.Errorf("runner: invalid expected pattern %q: %w", cmd.Expected, err)
		}
		if !re.MatchString(actual) {
			return fmt.Errorf("%w: output does not match pattern %q", ErrAssertionFailed, cmd.Expected)
		}
		return nil

	case spec.AssertLiteral:
		want := strings.TrimRight(cmd.Expected, "\n")
		got := strings.TrimRight(actual, "\n")
		if want != got {
			return fmt.Errorf("%w: expected %q, got %q", ErrAssertionFailed, want, got)
		}
		return nil

	default:
		// A mode outside the enum is a bug in the caller, not a test result.
		panic(fmt.Sprintf("runner: unknown assert mode %d", cmd.AssertMode))
	}
}

// Assert evaluates a normal command's result against cmd's expectation and
// exit status, returning every failing condition's name drawn from
// {"output", "returncode"}. A nil/empty result means the command passed:
// PASSED iff the output matches AND the exit code is 0.
func Assert(cmd *spec.Command, result *session.CommandResult) []string {
	var reasons []string
	if AssertOutput(cmd, result.Output) != nil {
		reasons = append(reasons, "output")
	}
	if result.ExitCode != 0 {
		reasons = append(reasons, "returncode")
	}
	return reasons
}
