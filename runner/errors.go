package runner

import "errors"

// ErrAssertionFailed is returned by AssertOutput when a command's live
// output does not satisfy its assert mode, and wrapped into the error of a
// CommandFailed event when a normal command fails Assert.
var ErrAssertionFailed = errors.New("runner: assertion failed")

// ErrNoSuchFixture names a run-scoped fixture that no Run call registered.
// No function in this package returns it: Finalize takes no fixture name
// and runs every pending post half.
var ErrNoSuchFixture = errors.New("runner: no such run-scoped fixture")

// ErrScriptFailed is returned when a script-mode command's call returns a
// value other than true.
var ErrScriptFailed = errors.New("runner: script returned failure")
