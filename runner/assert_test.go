package runner

import (
	"testing"

	"github.com/shellinspector/shellinspector/session"
	"github.com/shellinspector/shellinspector/spec"
)

func TestAssertCombinesOutputAndReturnCode(t *testing.T) {
	c := &spec.Command{AssertMode: spec.AssertLiteral, Expected: "ok"}

	if reasons := Assert(c, &session.CommandResult{Output: "ok", ExitCode: 0}); len(reasons) != 0 {
		t.Fatalf("reasons = %v, want none", reasons)
	}
	if reasons := Assert(c, &session.CommandResult{Output: "nope", ExitCode: 0}); len(reasons) != 1 || reasons[0] != "output" {
		t.Fatalf("reasons = %v, want [output]", reasons)
	}
	if reasons := Assert(c, &session.CommandResult{Output: "ok", ExitCode: 1}); len(reasons) != 1 || reasons[0] != "returncode" {
		t.Fatalf("reasons = %v, want [returncode]", reasons)
	}
	if reasons := Assert(c, &session.CommandResult{Output: "nope", ExitCode: 1}); len(reasons) != 2 {
		t.Fatalf("reasons = %v, want both output and returncode", reasons)
	}
}

func TestAssertIgnoreStillChecksReturnCode(t *testing.T) {
	c := &spec.Command{AssertMode: spec.AssertIgnore, Expected: "anything"}

	if reasons := Assert(c, &session.CommandResult{Output: "whatever", ExitCode: 0}); len(reasons) != 0 {
		t.Fatalf("reasons = %v, want none", reasons)
	}
	if reasons := Assert(c, &session.CommandResult{Output: "whatever", ExitCode: 2}); len(reasons) != 1 || reasons[0] != "returncode" {
		t.Fatalf("reasons = %v, want [returncode]", reasons)
	}
}

func TestAssertOutputRegex(t *testing.T) {
	c := &spec.Command{AssertMode: spec.AssertRegex, Expected: "Usage: .*\nWrite the full path"}
	if err := AssertOutput(c, "Usage: which\nWrite the full path to it\n"); err != nil {
		t.Fatalf("AssertOutput: %v", err)
	}
	if err := AssertOutput(c, "nope"); err == nil {
		t.Fatal("expected a mismatch error")
	}
}
