package spec

import "testing"

func TestSplitFrontMatterPresent(t *testing.T) {
	content := "---\nenvironment:\n  FOO: bar\n---\n$ echo hi\nhi\n"
	fm, body, firstLine := splitFrontMatter(content)
	if fm != "environment:\n  FOO: bar" {
		t.Errorf("frontMatterYAML = %q", fm)
	}
	if body != "$ echo hi\nhi\n" {
		t.Errorf("body = %q", body)
	}
	if firstLine != 4 {
		t.Errorf("firstLine = %d, want 4", firstLine)
	}
}

func TestSplitFrontMatterAbsent(t *testing.T) {
	content := "$ echo hi\nhi\n"
	fm, body, firstLine := splitFrontMatter(content)
	if fm != "" || body != content || firstLine != 0 {
		t.Errorf("got (%q, %q, %d)", fm, body, firstLine)
	}
}

func TestSplitFrontMatterUnterminated(t *testing.T) {
	content := "---\nenvironment:\n  FOO: bar\n$ echo hi\n"
	fm, body, firstLine := splitFrontMatter(content)
	if fm != "" || body != content || firstLine != 0 {
		t.Errorf("expected fallback to whole-body parse, got (%q, %q, %d)", fm, body, firstLine)
	}
}

func TestParseFrontMatterEmpty(t *testing.T) {
	fm, err := parseFrontMatter("")
	if err != nil {
		t.Fatal(err)
	}
	if fm.Environment != nil || fm.Fixture != nil {
		t.Errorf("expected zero-value FrontMatter, got %+v", fm)
	}
}

func TestFixtureDeclBareString(t *testing.T) {
	fm, err := parseFrontMatter("fixture: database")
	if err != nil {
		t.Fatal(err)
	}
	if fm.Fixture == nil || fm.Fixture.Name != "database" || fm.Fixture.Scope != FixtureScopeFile {
		t.Errorf("fixture = %+v", fm.Fixture)
	}
}

func TestFixtureDeclMapping(t *testing.T) {
	fm, err := parseFrontMatter("fixture:\n  name: database\n  scope: run")
	if err != nil {
		t.Fatal(err)
	}
	if fm.Fixture == nil || fm.Fixture.Name != "database" || fm.Fixture.Scope != FixtureScopeRun {
		t.Errorf("fixture = %+v", fm.Fixture)
	}
}

func TestParseFrontMatterSettings(t *testing.T) {
	fm, err := parseFrontMatter("settings:\n  timeout_seconds: 10\n  include_dirs:\n    - includes\n")
	if err != nil {
		t.Fatal(err)
	}
	if fm.Settings.TimeoutSeconds == nil || *fm.Settings.TimeoutSeconds != 10 {
		t.Errorf("timeout_seconds = %v", fm.Settings.TimeoutSeconds)
	}
	if len(fm.Settings.IncludeDirs) != 1 || fm.Settings.IncludeDirs[0] != "includes" {
		t.Errorf("include_dirs = %v", fm.Settings.IncludeDirs)
	}
}
