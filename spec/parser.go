package spec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// heredocRE recognizes a trailing here-document opener on a command line,
// e.g. "cat <<EOF", "cat <<-EOF", "cat <<'EOF'".
var heredocRE = regexp.MustCompile(`<<-?\s*(?:'([^']*)'|"([^"]*)"|(\S+))\s*$`)

func heredocDelimiter(cmd string) (string, bool) {
	m := heredocRE.FindStringSubmatch(cmd)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", false
}

// Parse parses a spec file read from r. path is used for include/fixture
// resolution and for SourceFile attribution on the resulting commands and
// errors; it need not exist on disk when r is not an *os.File.
func Parse(path string, r io.Reader) (*Specfile, error) {
	return parseFile(path, r, false)
}

// ParseFile opens and parses the spec file at path.
func ParseFile(path string) (*Specfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spec: opening %s: %w", path, err)
	}
	defer f.Close()
	return parseFile(path, f, false)
}

func parseFile(path string, r io.Reader, isFixture bool) (*Specfile, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("spec: reading %s: %w", path, err)
	}

	fmYAML, body, bodyFirstLine := splitFrontMatter(string(content))
	fm, err := parseFrontMatter(fmYAML)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFrontMatter, path, err)
	}

	proj, err := ResolveProjectConfig(path)
	if err != nil {
		return nil, err
	}

	merged, err := mergeConfig(fm, filepath.Dir(path), proj)
	if err != nil {
		return nil, err
	}

	commands, errs, err := parseBody(path, body, bodyFirstLine, merged.Settings.IncludeDirs)
	if err != nil {
		return nil, err
	}
	postProcessExpected(commands)

	sf := &Specfile{
		Path:        path,
		Commands:    commands,
		Errors:      errs,
		Environment: merged.Environment,
		Examples:    merged.Examples,
		Tags:        merged.Tags,
		Settings:    merged.Settings,
		IsFixture:   isFixture,
	}

	if merged.Fixture != nil {
		if isFixture {
			return nil, fmt.Errorf("%s: %w", path, ErrFixtureHasFixture)
		}
		sf.Fixture = merged.Fixture.Name
		sf.FixtureScope = merged.Fixture.Scope

		pre, post, err := resolveFixture(merged.Fixture.Name, merged.Settings.FixtureDirs)
		switch {
		case errors.Is(err, ErrMissingFixture):
			sf.Errors = append(sf.Errors, Error{SourceFile: path, SourceLineNo: 1, Message: err.Error()})
		case err != nil:
			return nil, fmt.Errorf("%s: %w", path, err)
		default:
			sf.FixtureSpecfilePre = pre
			sf.FixtureSpecfilePost = post
		}
	}

	return sf, nil
}

// resolveFixture locates and parses the "<name>_pre.ispec"/"<name>_post.ispec"
// pair in dirs. Either half may be absent, but at least one must exist.
func resolveFixture(name string, dirs []string) (pre, post *Specfile, err error) {
	pre, err = tryParseFixturePart(name+"_pre.ispec", dirs)
	if err != nil {
		return nil, nil, err
	}
	post, err = tryParseFixturePart(name+"_post.ispec", dirs)
	if err != nil {
		return nil, nil, err
	}
	if pre == nil && post == nil {
		return nil, nil, fmt.Errorf("%s: %w", name, ErrMissingFixture)
	}
	return pre, post, nil
}

func tryParseFixturePart(filename string, dirs []string) (*Specfile, error) {
	for _, dir := range dirs {
		full := filepath.Join(dir, filename)
		f, err := os.Open(full)
		if err != nil {
			continue
		}
		sf, err := parseFile(full, f, true)
		f.Close()
		if err != nil {
			return nil, err
		}
		return sf, nil
	}
	return nil, nil
}

// findInDirs returns the first existing path of name joined against each of
// dirs, in order.
func findInDirs(name string, dirs []string) (string, error) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrMissingInclude)
}

// parseBody runs the line-oriented command grammar over body, whose first
// line is overall source line firstLine+1. includeDirs is
// consulted for "<name" include directives.
func parseBody(path, body string, firstLine int, includeDirs []string) ([]*Command, []Error, error) {
	lines := strings.Split(body, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var commands []*Command
	var errs []Error

	for i, raw := range lines {
		lineNo := firstLine + i + 1

		var lastCmd *Command
		if len(commands) > 0 {
			lastCmd = commands[len(commands)-1]
		}

		// Here-document continuation takes priority over every other rule:
		// raw lines are absorbed verbatim into the command text until the
		// delimiter line is seen.
		if lastCmd != nil && lastCmd.HasHeredoc {
			lastCmd.Command += "\n" + raw
			if strings.TrimRight(raw, "\r") == lastCmd.HeredocDelimiter {
				lastCmd.HasHeredoc = false
			}
			continue
		}

		stripped := strings.TrimSpace(raw)

		if strings.HasPrefix(stripped, "#") {
			continue
		}

		if stripped == "" && lastCmd == nil {
			continue
		}

		if strings.HasPrefix(raw, "<") {
			includeName := strings.TrimSpace(raw[1:])
			includedPath, err := findInDirs(includeName, includeDirs)
			if err != nil {
				errs = append(errs, Error{SourceFile: path, SourceLineNo: lineNo, SourceLine: raw, Message: err.Error()})
				continue
			}

			f, err := os.Open(includedPath)
			if err != nil {
				errs = append(errs, Error{SourceFile: path, SourceLineNo: lineNo, SourceLine: raw, Message: err.Error()})
				continue
			}
			includedContent, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("spec: reading include %s: %w", includedPath, err)
			}

			includedCmds, includedErrs, err := parseBody(includedPath, string(includedContent), 0, includeDirs)
			if err != nil {
				return nil, nil, err
			}
			commands = append(commands, includedCmds...)
			errs = append(errs, includedErrs...)
			continue
		}

		if hf, ok := matchHeader(raw); ok {
			// Default filling of header fields: an entirely bare header
			// (no brackets at all) defaults to the local host;
			// a header with brackets but an empty host defaults to
			// "remote" instead.
			host := hf.host
			if host == "" {
				if hf.hasBracket {
					host = "remote"
				} else {
					host = "local"
				}
			}

			user := hf.user
			if hf.mode == ModeRoot {
				user = "root"
			} else if user == "" && host != "local" {
				errs = append(errs, Error{
					SourceFile:   path,
					SourceLineNo: lineNo,
					SourceLine:   raw,
					Message:      "missing explicit user for remote host " + host,
				})
				continue
			}

			cmdText := raw[hf.end:]
			delimiter, hasHeredoc := heredocDelimiter(cmdText)

			commands = append(commands, &Command{
				ExecutionMode:    hf.mode,
				AssertMode:       hf.assert,
				Command:          cmdText,
				User:             user,
				Host:             host,
				SessionName:      hf.session,
				SourceFile:       path,
				SourceLineNo:     lineNo,
				Line:             raw,
				HasHeredoc:       hasHeredoc,
				HeredocDelimiter: delimiter,
			})
			continue
		}

		if lastCmd == nil {
			errs = append(errs, Error{
				SourceFile:   path,
				SourceLineNo: lineNo,
				SourceLine:   raw,
				Message:      "output line with no preceding command",
			})
			continue
		}

		lastCmd.Expected += raw + "\n"
	}

	return commands, errs, nil
}

// postProcessExpected applies the assert-mode trims once after body
// parsing: regex patterns drop trailing newlines, literal expectations
// drop leading and trailing CR/LF.
func postProcessExpected(commands []*Command) {
	for _, c := range commands {
		switch c.AssertMode {
		case AssertRegex:
			c.Expected = strings.TrimRight(c.Expected, "\n")
		case AssertLiteral:
			c.Expected = strings.Trim(c.Expected, "\r\n")
		}
	}
}
