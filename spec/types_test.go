package spec

import "testing"

func TestInterpolate(t *testing.T) {
	example := map[string]string{"user": "alice", "host": "web1"}

	cases := []struct {
		in, want string
	}{
		{"ssh {user}@{host}", "ssh alice@web1"},
		{"no placeholders here", "no placeholders here"},
		{"{missing} stays", "{missing} stays"},
		{"{unterminated", "{unterminated"},
	}
	for _, c := range cases {
		if got := interpolate(c.in, example); got != c.want {
			t.Errorf("interpolate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAsExampleDoesNotMutateReceiver(t *testing.T) {
	sf := &Specfile{
		Commands: []*Command{
			{Command: "echo {name}", Line: "$ echo {name}", Expected: "{name}"},
		},
	}

	out := sf.AsExample(map[string]string{"name": "world"})

	if sf.Commands[0].Command != "echo {name}" {
		t.Errorf("receiver mutated: %q", sf.Commands[0].Command)
	}
	if out.Commands[0].Command != "echo world" {
		t.Errorf("out.Command = %q", out.Commands[0].Command)
	}
	if out.AppliedExample["name"] != "world" {
		t.Errorf("AppliedExample = %v", out.AppliedExample)
	}
}

func TestCommandIsLogout(t *testing.T) {
	c := &Command{Command: "  logout  "}
	if !c.IsLogout() {
		t.Error("expected IsLogout true")
	}
	c.Command = "logout now"
	if c.IsLogout() {
		t.Error("expected IsLogout false for trailing text")
	}
}

func TestCommandLineCount(t *testing.T) {
	c := &Command{Expected: "one\ntwo\nthree"}
	if got := c.LineCount(); got != 3 {
		t.Errorf("LineCount = %d, want 3", got)
	}
	c.Expected = "one\ntwo\n"
	if got := c.LineCount(); got != 2 {
		t.Errorf("LineCount = %d, want 2", got)
	}
}

func TestHeaderGlyphRoundTrip(t *testing.T) {
	for _, m := range []ExecutionMode{ModeUser, ModeRoot, ModeScript} {
		got, ok := executionModeFromGlyph(m.Glyph())
		if !ok || got != m {
			t.Errorf("round trip failed for %v", m)
		}
	}
	for _, a := range []AssertMode{AssertLiteral, AssertRegex, AssertIgnore} {
		got, ok := assertModeFromGlyph(a.Glyph())
		if !ok || got != a {
			t.Errorf("round trip failed for %v", a)
		}
	}
}
