package spec

import "errors"

// Sentinel errors of Parse and its helpers. ErrInvalidFrontMatter and
// ErrFixtureHasFixture abort parsing and are returned by Parse.
// ErrMissingInclude and ErrMissingFixture do not abort it: their text is
// recorded as an Error value on the resulting Specfile.
var (
	// ErrMissingInclude is returned when an include directive (`<name`)
	// names a file that cannot be found in any configured include_dirs.
	ErrMissingInclude = errors.New("spec: include file not found")

	// ErrMissingFixture is returned when a fixture declaration names a
	// fixture that cannot be found in any configured fixture_dirs.
	ErrMissingFixture = errors.New("spec: fixture file not found")

	// ErrInvalidFrontMatter is returned when the leading YAML document
	// cannot be decoded.
	ErrInvalidFrontMatter = errors.New("spec: invalid front matter")

	// ErrFixtureHasFixture is returned when a fixture specfile itself
	// declares a fixture, which is not supported (see DESIGN.md).
	ErrFixtureHasFixture = errors.New("spec: fixture specfile may not declare its own fixture")
)
