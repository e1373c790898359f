package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the structured document optionally found at the top of a
// spec file. It also doubles as the shape of the project-wide
// shellinspector.yaml config file; the two are merged under explicit
// precedence rules in mergeConfig.
type FrontMatter struct {
	Environment map[string]string   `yaml:"environment"`
	Examples    []map[string]string `yaml:"examples"`
	Fixture     *FixtureDecl        `yaml:"fixture"`
	Tags        []string            `yaml:"tags"`
	Settings    rawSettings         `yaml:"settings"`
}

// rawSettings mirrors Settings but with pointer fields so mergeConfig can
// tell "not set at this layer" apart from a zero value.
type rawSettings struct {
	TimeoutSeconds *int     `yaml:"timeout_seconds"`
	IncludeDirs    []string `yaml:"include_dirs"`
	FixtureDirs    []string `yaml:"fixture_dirs"`
}

// FixtureDecl is the `fixture:` front-matter key, which may be either a bare
// name or a mapping of {name, scope}.
type FixtureDecl struct {
	Name  string
	Scope FixtureScope
}

// UnmarshalYAML implements custom decoding so `fixture: foo` and
// `fixture: {name: foo, scope: run}` both decode into a FixtureDecl.
func (f *FixtureDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.Name = node.Value
		f.Scope = FixtureScopeFile
		return nil
	}

	var aux struct {
		Name  string `yaml:"name"`
		Scope string `yaml:"scope"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}

	f.Name = aux.Name
	if strings.EqualFold(aux.Scope, "run") {
		f.Scope = FixtureScopeRun
	} else {
		f.Scope = FixtureScopeFile
	}
	return nil
}

// splitFrontMatter separates an optional structured front-matter block from
// the line-oriented body. It returns the raw YAML text
// of the front-matter (empty if absent), the body text, and the 1-based
// line number of the front-matter's closing "---" (0 if there was no
// front-matter), so the caller can keep reporting line numbers relative to
// the original file.
func splitFrontMatter(content string) (frontMatterYAML, body string, bodyFirstLine int) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != "---" {
		return "", content, 0
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == "---" {
			frontMatterYAML = strings.Join(lines[1:i], "\n")
			body = strings.Join(lines[i+1:], "\n")
			bodyFirstLine = i + 1
			return frontMatterYAML, body, bodyFirstLine
		}
	}

	// No closing marker: treat the whole stream as body, same as if there
	// were no front-matter at all.
	return "", content, 0
}

// parseFrontMatter decodes the raw YAML front-matter text (which may be
// empty) into a FrontMatter. An empty document yields a zero-value
// FrontMatter rather than an error.
func parseFrontMatter(raw string) (FrontMatter, error) {
	var fm FrontMatter
	if strings.TrimSpace(raw) == "" {
		return fm, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return fm, err
	}
	return fm, nil
}
