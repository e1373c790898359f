package spec

import "regexp"

// prefixRE recognizes the command header:
//
//	(\[ user? (:session)? @ host? \])?
//	[$%!]
//	[=~_]?
//	<space>
var prefixRE = regexp.MustCompile(
	`^(?P<bracket>\[` +
		`(?P<user>[a-z]+)?` +
		`(?::(?P<session>[a-z0-9]+))?` +
		`@` +
		`(?P<host>[a-z]+)?` +
		`\])?` +
		`(?P<mode>[$%!])` +
		`(?P<assert>[=~_]?)` +
		` `,
)

// headerFields holds the raw capture groups of a matched header.
type headerFields struct {
	// hasBracket reports whether the optional "[user[:session]@host]" group
	// was present at all, which distinguishes an entirely bare header (no
	// brackets, host defaults to "local") from one with an empty host
	// inside the brackets (host defaults to "remote").
	hasBracket bool
	user       string
	session    string
	host       string
	mode       ExecutionMode
	assert     AssertMode
	// end is the index in the matched line immediately after the header,
	// i.e. where the command text begins.
	end int
}

// matchHeader attempts to match the prefix grammar at the start of line. It
// returns (nil, false) if the line does not begin with a valid header.
func matchHeader(line string) (*headerFields, bool) {
	loc := prefixRE.FindStringSubmatchIndex(line)
	if loc == nil {
		return nil, false
	}

	names := prefixRE.SubexpNames()
	groups := make(map[string]string, len(names))
	for i, name := range names {
		if name == "" {
			continue
		}
		start, end := loc[2*i], loc[2*i+1]
		if start == -1 {
			continue
		}
		groups[name] = line[start:end]
	}

	mode, ok := executionModeFromGlyph(groups["mode"][0])
	if !ok {
		return nil, false
	}

	assert := AssertLiteral
	if a := groups["assert"]; a != "" {
		assert, ok = assertModeFromGlyph(a[0])
		if !ok {
			return nil, false
		}
	}

	_, hasBracket := groups["bracket"]

	return &headerFields{
		hasBracket: hasBracket,
		user:       groups["user"],
		session:    groups["session"],
		host:       groups["host"],
		mode:       mode,
		assert:     assert,
		end:        loc[1],
	}, true
}
