package shellio

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellinspector/shellinspector/session"
)

func TestPromptSetCommandNeverContainsSentinel(t *testing.T) {
	p := NewPrompt()
	assert.NotContains(t, p.SetCommand(), p.String())
}

func TestWaitForPromptSplitsAtSentinel(t *testing.T) {
	p := NewPrompt()
	pr, pw := io.Pipe()
	r := NewReader(pr, p)
	defer r.Close()

	go func() {
		_, _ = pw.Write([]byte("hello\r\nworld\r\n" + p.String()))
	}()

	out, err := r.WaitForPrompt(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", out)
}

func TestWaitForPromptHandlesSentinelSplitAcrossReads(t *testing.T) {
	p := NewPrompt()
	pr, pw := io.Pipe()
	r := NewReader(pr, p)
	defer r.Close()

	go func() {
		sentinel := p.String()
		_, _ = pw.Write([]byte("out\n" + sentinel[:4]))
		time.Sleep(10 * time.Millisecond)
		_, _ = pw.Write([]byte(sentinel[4:]))
	}()

	out, err := r.WaitForPrompt(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "out\n", out)
}

func TestWaitForPromptKeepsLeftoverForNextCall(t *testing.T) {
	p := NewPrompt()
	pr, pw := io.Pipe()
	r := NewReader(pr, p)
	defer r.Close()

	go func() {
		_, _ = pw.Write([]byte("first\n" + p.String() + "second\n" + p.String()))
	}()

	out, err := r.WaitForPrompt(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first\n", out)

	out, err = r.WaitForPrompt(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second\n", out)
}

func TestWaitForPromptTimeoutCarriesPartialOutput(t *testing.T) {
	p := NewPrompt()
	pr, pw := io.Pipe()
	r := NewReader(pr, p)
	defer r.Close()
	defer pw.Close()

	go func() {
		_, _ = pw.Write([]byte("stuck here"))
	}()

	_, err := r.WaitForPrompt(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, session.ErrPromptTimeout)

	var te *session.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "stuck here", te.Partial)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "red\nline\n", Normalize("\x1b[31mred\x1b[0m\r\nline\r"))
}

func TestParseExports(t *testing.T) {
	out := strings.Join([]string{
		`declare -x HOME="/root"`,
		`declare -x EMPTY=""`,
		`declare -x NOVALUE`,
		`export PATH="/usr/bin:/bin"`,
		`export QUOTED='has space'`,
		``,
	}, "\n")

	env := ParseExports(out)
	assert.Equal(t, map[string]string{
		"HOME":   "/root",
		"EMPTY":  "",
		"PATH":   "/usr/bin:/bin",
		"QUOTED": "has space",
	}, env)
}
