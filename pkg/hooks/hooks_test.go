package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHook(t *testing.T, root string, point Point, script string) {
	t.Helper()
	dir := filepath.Join(root, ".peleka", "hooks")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, string(point))
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}

func TestRunMissingHookIsNotAnError(t *testing.T) {
	r := NewRunner(t.TempDir())
	err := r.Run(context.Background(), PreDeploy, Context{Service: "checkout"})
	assert.NoError(t, err)
}

func TestRunSuccessfulHook(t *testing.T) {
	root := t.TempDir()
	writeHook(t, root, PreDeploy, "#!/bin/sh\nexit 0\n")

	r := NewRunner(root)
	err := r.Run(context.Background(), PreDeploy, Context{Service: "checkout", Image: "img:v1", Server: "host1", Runtime: "docker"})
	assert.NoError(t, err)
}

func TestRunFailingHookReturnsError(t *testing.T) {
	root := t.TempDir()
	writeHook(t, root, PostDeploy, "#!/bin/sh\necho boom >&2\nexit 1\n")

	r := NewRunner(root)
	err := r.Run(context.Background(), PostDeploy, Context{Service: "checkout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "post-deploy")
}

func TestRunNonExecutableHookIsAnError(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".peleka", "hooks")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(OnError)), []byte("#!/bin/sh\n"), 0o644))

	r := NewRunner(root)
	err := r.Run(context.Background(), OnError, Context{Service: "checkout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not executable")
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, Fatal, PolicyFor(PreDeploy))
	assert.Equal(t, Warning, PolicyFor(OnError))
	assert.Equal(t, Warning, PolicyFor(PostDeploy))
}

func TestContextEnvOmitsPreviousVersionWhenUnset(t *testing.T) {
	c := Context{Service: "checkout", Image: "img:v1", Server: "host1", Runtime: "docker"}
	env := c.env()
	for _, kv := range env {
		assert.NotContains(t, kv, "PELEKA_PREVIOUS_VERSION=")
	}
}
