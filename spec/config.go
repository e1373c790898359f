package spec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"

	"github.com/shellinspector/shellinspector/sh/shellescape"
)

// ProjectConfigFileName is the name of the project-wide configuration file
// resolved by walking up from a spec file's directory.
const ProjectConfigFileName = "shellinspector.yaml"

// ProjectConfig is the result of resolving a project-wide configuration
// file for a given spec path.
type ProjectConfig struct {
	// Path is empty when no project config file was found.
	Path        string
	Dir         string
	FrontMatter FrontMatter
}

// findGitRoot walks up from start looking for a directory containing a
// ".git" marker, the same upward-search idiom used for project config
// resolution below. Returns start itself if no .git is found before the
// filesystem root.
func findGitRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// ResolveProjectConfig walks upward from the directory containing specPath
// looking for ProjectConfigFileName, stopping once the directory containing
// a ".git" marker has been checked, or the filesystem root is reached. A
// missing file is not an error: it yields a zero-value ProjectConfig.
func ResolveProjectConfig(specPath string) (ProjectConfig, error) {
	startDir := filepath.Dir(specPath)
	gitRoot := findGitRoot(startDir)

	dir := startDir
	for {
		candidate := filepath.Join(dir, ProjectConfigFileName)
		if data, err := os.ReadFile(candidate); err == nil {
			fm, err := parseFrontMatter(string(data))
			if err != nil {
				return ProjectConfig{}, fmt.Errorf("project config %s: %w", candidate, err)
			}
			return ProjectConfig{Path: candidate, Dir: dir, FrontMatter: fm}, nil
		}

		if dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ProjectConfig{}, nil
}

// mergedConfig is the outcome of applying the precedence rule: spec
// front-matter beats project config beats built-in defaults, assigned
// per key rather than deep-merged. Each field of the settings block counts
// as its own key.
type mergedConfig struct {
	Environment map[string]string
	Examples    []map[string]string
	Fixture     *FixtureDecl
	Tags        []string
	Settings    Settings
}

func mergeConfig(specFM FrontMatter, specDir string, proj ProjectConfig) (mergedConfig, error) {
	var out mergedConfig

	switch {
	case specFM.Environment != nil:
		out.Environment = specFM.Environment
	case proj.FrontMatter.Environment != nil:
		out.Environment = proj.FrontMatter.Environment
	default:
		out.Environment = map[string]string{}
	}
	out.Environment = expandEnvironment(out.Environment)

	switch {
	case specFM.Examples != nil:
		out.Examples = specFM.Examples
	case proj.FrontMatter.Examples != nil:
		out.Examples = proj.FrontMatter.Examples
	}

	switch {
	case specFM.Fixture != nil:
		out.Fixture = specFM.Fixture
	case proj.FrontMatter.Fixture != nil:
		out.Fixture = proj.FrontMatter.Fixture
	}

	switch {
	case specFM.Tags != nil:
		out.Tags = specFM.Tags
	case proj.FrontMatter.Tags != nil:
		out.Tags = proj.FrontMatter.Tags
	}

	settings, err := mergeSettings(specFM.Settings, proj.FrontMatter.Settings, specDir, proj.Dir)
	if err != nil {
		return mergedConfig{}, err
	}
	out.Settings = settings

	return out, nil
}

func mergeSettings(spec, proj rawSettings, specDir, projDir string) (Settings, error) {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		return Settings{}, fmt.Errorf("settings defaults: %w", err)
	}

	switch {
	case spec.TimeoutSeconds != nil:
		s.TimeoutSeconds = *spec.TimeoutSeconds
	case proj.TimeoutSeconds != nil:
		s.TimeoutSeconds = *proj.TimeoutSeconds
	}

	includeDirs, includeBase := spec.IncludeDirs, specDir
	if includeDirs == nil {
		includeDirs, includeBase = proj.IncludeDirs, projDir
	}
	s.IncludeDirs = appendFallbackDir(resolveDirs(includeDirs, includeBase), specDir)

	fixtureDirs, fixtureBase := spec.FixtureDirs, specDir
	if fixtureDirs == nil {
		fixtureDirs, fixtureBase = proj.FixtureDirs, projDir
	}
	s.FixtureDirs = appendFallbackDir(resolveDirs(fixtureDirs, fixtureBase), specDir)

	return s, nil
}

// resolveDirs resolves every relative entry in dirs against base. Already
// absolute entries are left untouched.
func resolveDirs(dirs []string, base string) []string {
	if len(dirs) == 0 {
		return nil
	}
	out := make([]string, len(dirs))
	for i, d := range dirs {
		if filepath.IsAbs(d) || base == "" {
			out[i] = d
		} else {
			out[i] = filepath.Join(base, d)
		}
	}
	return out
}

// appendFallbackDir appends the spec's own directory to dirs, unless it is
// already present, so both include_dirs and fixture_dirs always contain at
// least the spec's own directory as a fallback.
func appendFallbackDir(dirs []string, fallback string) []string {
	for _, d := range dirs {
		if d == fallback {
			return dirs
		}
	}
	return append(dirs, fallback)
}

// expandEnvironment scans every value for $NAME and ${NAME} tokens and
// expands them against the host process's environment.
func expandEnvironment(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		expanded, err := shellescape.Expand(v)
		if err != nil {
			expanded = v
		}
		out[k] = expanded
	}
	return out
}
