package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdir/pkg/cerr"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("scripts", NewShellRunner()))

	rn, err := reg.Resolve("scripts")
	require.NoError(t, err)
	assert.NotNil(t, rn)

	_, err = reg.Resolve("applescript")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("scripts", NewShellRunner()))
	err := reg.Register("scripts", NewShellRunner())
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestSeedBuiltins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.SeedBuiltins())

	rn, err := reg.Resolve(ShellType)
	require.NoError(t, err)
	assert.IsType(t, &ShellRunner{}, rn)
}

func TestSeedFromEntries(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.SeedFromEntries([]Entry{
		{Type: "applescript", Command: "/usr/bin/osascript-runner"},
		{Type: "claude_cli", Command: "claude-runner", Args: []string{"--non-interactive"}},
	}))

	rn, err := reg.Resolve("applescript")
	require.NoError(t, err)
	exec, ok := rn.(*ExecRunner)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/osascript-runner", exec.Command)

	err = reg.SeedFromEntries([]Entry{{Type: "broken"}})
	require.Error(t, err)
}

func TestSeedFromDirConvention(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runner_for_applescript"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runner_for_claude_cli.sh"), []byte("#!/bin/sh\n"), 0o755))
	// Not executable: skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runner_for_ignored"), []byte(""), 0o644))
	// Unrelated file: skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(""), 0o644))

	reg := NewRegistry()
	require.NoError(t, reg.SeedFromDir(dir))

	_, err := reg.Resolve("applescript")
	require.NoError(t, err)
	_, err = reg.Resolve("claude_cli")
	require.NoError(t, err)
	_, err = reg.Resolve("ignored")
	require.Error(t, err)

	assert.ElementsMatch(t, []string{"applescript", "claude_cli"}, reg.Types())
}

func TestSeedFromDirMissingDirectory(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.SeedFromDir(filepath.Join(t.TempDir(), "nope")))
	assert.Empty(t, reg.Types())
}
