package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/shellinspector/shellinspector/spec"
)

// fixtureState tracks which RUN-scoped fixtures have had their "pre" half
// executed already, and the environment captured from that session
// afterward, satisfying the SI_USER hand-off contract: a RUN-scoped
// fixture's pre half runs at most once per process, and whatever it
// exported is available to later spec files sharing it via
// Runner.FixtureEnvironment.
type fixtureState struct {
	mu          sync.Mutex
	ranPre      map[string]bool
	environment map[string]map[string]string
	pendingPost map[string]*spec.Specfile
}

func newFixtureState() *fixtureState {
	return &fixtureState{
		ranPre:      make(map[string]bool),
		environment: make(map[string]map[string]string),
		pendingPost: make(map[string]*spec.Specfile),
	}
}

// runFixturePre runs sf's "pre" half, honoring FixtureScope: a FILE-scoped
// fixture runs every time; a RUN-scoped fixture runs only on the first
// call for its name. It shares used with the caller, so the fixture and
// the spec file it guards reuse the same sessions and environment
// scoping.
func (r *Runner) runFixturePre(ctx context.Context, sf *spec.Specfile, used usedSessions) error {
	if sf.Fixture == "" || sf.FixtureSpecfilePre == nil {
		return nil
	}

	if sf.FixtureScope == spec.FixtureScopeRun {
		r.fixtures.mu.Lock()
		already := r.fixtures.ranPre[sf.Fixture]
		r.fixtures.mu.Unlock()
		if already {
			return nil
		}
	}

	if err := r.runCommands(ctx, sf.FixtureSpecfilePre, sf.FixtureSpecfilePre.Commands, used); err != nil {
		return fmt.Errorf("fixture %s: pre: %w", sf.Fixture, err)
	}

	env, err := r.captureFixtureEnvironment(ctx, sf.FixtureSpecfilePre)
	if err != nil {
		r.Log().Debug("fixture environment capture failed", "fixture", sf.Fixture, "error", err)
	}

	r.fixtures.mu.Lock()
	r.fixtures.ranPre[sf.Fixture] = true
	if env != nil {
		r.fixtures.environment[sf.Fixture] = env
	}
	if sf.FixtureScope == spec.FixtureScopeRun && sf.FixtureSpecfilePost != nil {
		r.fixtures.pendingPost[sf.Fixture] = sf.FixtureSpecfilePost
	}
	r.fixtures.mu.Unlock()

	return nil
}

// runFixturePost runs sf's "post" half immediately if it is FILE-scoped.
// RUN-scoped fixtures defer their post half to Finalize.
func (r *Runner) runFixturePost(ctx context.Context, sf *spec.Specfile, used usedSessions) error {
	if sf.Fixture == "" || sf.FixtureSpecfilePost == nil || sf.FixtureScope == spec.FixtureScopeRun {
		return nil
	}
	if err := r.runCommands(ctx, sf.FixtureSpecfilePost, sf.FixtureSpecfilePost.Commands, used); err != nil {
		return fmt.Errorf("fixture %s: post: %w", sf.Fixture, err)
	}
	return nil
}

// captureFixtureEnvironment reads back the environment of the session the
// fixture's last command ran in, if any command ran at all.
func (r *Runner) captureFixtureEnvironment(ctx context.Context, fixtureSf *spec.Specfile) (map[string]string, error) {
	if len(fixtureSf.Commands) == 0 {
		return nil, nil
	}
	last := fixtureSf.Commands[len(fixtureSf.Commands)-1]
	key, err := r.sessionKeyFor(last)
	if err != nil {
		return nil, err
	}
	sess, err := r.Pool.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return sess.GetEnvironment(ctx)
}

// FixtureEnvironment returns the environment captured after the named
// fixture's pre half last ran, if it has run at all.
func (r *Runner) FixtureEnvironment(name string) (map[string]string, bool) {
	r.fixtures.mu.Lock()
	defer r.fixtures.mu.Unlock()
	env, ok := r.fixtures.environment[name]
	return env, ok
}

// Finalize runs the post half of every RUN-scoped fixture that has been
// activated but not yet torn down, then clears the pending set. Callers
// drive a whole test run (spanning many spec files) and are expected to
// call Finalize once after the last one.
func (r *Runner) Finalize(ctx context.Context) error {
	r.fixtures.mu.Lock()
	pending := r.fixtures.pendingPost
	r.fixtures.pendingPost = make(map[string]*spec.Specfile)
	r.fixtures.mu.Unlock()

	var firstErr error
	for name, post := range pending {
		used := make(usedSessions)
		if err := r.runCommands(ctx, post, post.Commands, used); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fixture %s: post: %w", name, err)
			}
		}
		used.popAll(ctx, r, post)
	}
	return firstErr
}
