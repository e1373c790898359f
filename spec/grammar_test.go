package spec

import "testing"

func TestMatchHeaderLocal(t *testing.T) {
	hf, ok := matchHeader("$ echo hello")
	if !ok {
		t.Fatal("expected match")
	}
	if hf.mode != ModeUser {
		t.Errorf("mode = %v, want ModeUser", hf.mode)
	}
	if hf.assert != AssertLiteral {
		t.Errorf("assert = %v, want AssertLiteral", hf.assert)
	}
	if hf.host != "" || hf.user != "" {
		t.Errorf("expected no host/user, got host=%q user=%q", hf.host, hf.user)
	}
	if hf.hasBracket {
		t.Error("expected hasBracket = false for a bracket-less header")
	}
	if got := "echo hello"; "$ echo hello"[hf.end:] != got {
		t.Errorf("command text = %q, want %q", "$ echo hello"[hf.end:], got)
	}
}

func TestMatchHeaderRemote(t *testing.T) {
	hf, ok := matchHeader("[admin@webhost]%~ cat /etc/hosts")
	if !ok {
		t.Fatal("expected match")
	}
	if hf.user != "admin" || hf.host != "webhost" {
		t.Errorf("user/host = %q/%q, want admin/webhost", hf.user, hf.host)
	}
	if !hf.hasBracket {
		t.Error("expected hasBracket = true")
	}
	if hf.mode != ModeRoot {
		t.Errorf("mode = %v, want ModeRoot", hf.mode)
	}
	if hf.assert != AssertRegex {
		t.Errorf("assert = %v, want AssertRegex", hf.assert)
	}
}

func TestMatchHeaderSessionName(t *testing.T) {
	hf, ok := matchHeader("[user:alt@host]$ whoami")
	if !ok {
		t.Fatal("expected match")
	}
	if hf.session != "alt" {
		t.Errorf("session = %q, want alt", hf.session)
	}
}

func TestMatchHeaderIgnoreAssert(t *testing.T) {
	hf, ok := matchHeader("$_ date")
	if !ok {
		t.Fatal("expected match")
	}
	if hf.assert != AssertIgnore {
		t.Errorf("assert = %v, want AssertIgnore", hf.assert)
	}
}

func TestMatchHeaderNoMatch(t *testing.T) {
	cases := []string{
		"",
		"just some output",
		"# a comment",
		". include-me",
	}
	for _, c := range cases {
		if _, ok := matchHeader(c); ok {
			t.Errorf("matchHeader(%q) matched unexpectedly", c)
		}
	}
}

func TestHeredocDelimiter(t *testing.T) {
	cases := []struct {
		cmd       string
		delimiter string
		ok        bool
	}{
		{"cat <<EOF", "EOF", true},
		{"cat <<-EOF", "EOF", true},
		{"cat <<'EOF'", "EOF", true},
		{`cat <<"MARK"`, "MARK", true},
		{"echo hello", "", false},
	}
	for _, c := range cases {
		d, ok := heredocDelimiter(c.cmd)
		if ok != c.ok || d != c.delimiter {
			t.Errorf("heredocDelimiter(%q) = (%q, %v), want (%q, %v)", c.cmd, d, ok, c.delimiter, c.ok)
		}
	}
}
