package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "peleka.yml"), []byte(content), 0o644))
	return dir
}

const minimalManifest = `
service: checkout
image: registry.example.com/checkout:v3
servers:
  - deploy@host1.example.com:2222
`

func TestLoadMinimalManifest(t *testing.T) {
	dir := writeManifest(t, minimalManifest)

	resolved, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "checkout", resolved.Config.Service.String())
	assert.Equal(t, "registry.example.com/checkout:v3", resolved.Config.Image.String())
	require.Len(t, resolved.Servers, 1)
	assert.Equal(t, "host1.example.com", resolved.Servers[0].Host)
	assert.Equal(t, 2222, resolved.Servers[0].Port)
	assert.Equal(t, "deploy", resolved.Servers[0].User)
}

func TestLoadMissingManifestReturnsConfigNotFound(t *testing.T) {
	_, err := Load(t.TempDir(), "")
	var notFound *ErrConfigNotFound
	require.ErrorAs(t, err, &notFound)
}

const manifestWithDestinations = `
service: checkout
image: checkout:v1
servers:
  - host1.example.com
env:
  LOG_LEVEL: info
labels:
  team: payments
destinations:
  staging:
    servers:
      - staging1.example.com
    env:
      LOG_LEVEL: debug
    labels:
      env: staging
`

func TestLoadDestinationOverridesMerge(t *testing.T) {
	dir := writeManifest(t, manifestWithDestinations)

	resolved, err := Load(dir, "staging")
	require.NoError(t, err)
	require.Len(t, resolved.Servers, 1)
	assert.Equal(t, "staging1.example.com", resolved.Servers[0].Host)
	assert.Equal(t, "debug", resolved.Config.Env["LOG_LEVEL"])
	assert.Equal(t, "payments", resolved.Config.Labels["team"])
	assert.Equal(t, "staging", resolved.Config.Labels["env"])
}

func TestLoadUnknownDestinationFails(t *testing.T) {
	dir := writeManifest(t, manifestWithDestinations)
	_, err := Load(dir, "nonexistent")
	require.Error(t, err)
}

const manifestWithEnvRef = `
service: checkout
image: checkout:v1
servers:
  - host1.example.com
env:
  DATABASE_URL:
    env: DATABASE_URL
    default: "postgres://localhost/checkout"
`

func TestLoadEnvReference(t *testing.T) {
	dir := writeManifest(t, manifestWithEnvRef)

	resolved, err := Load(dir, "")
	require.NoError(t, err)
	ref, ok := resolved.Config.EnvRefs["DATABASE_URL"]
	require.True(t, ok)
	assert.Equal(t, "DATABASE_URL", ref.Var)
	require.NotNil(t, ref.Default)
	assert.Equal(t, "postgres://localhost/checkout", *ref.Default)
}

const manifestWithResourcesAndRestart = `
service: checkout
image: checkout:v1
servers:
  - host1.example.com
restart: "on-failure:5"
resources:
  memory: "512m"
  cpus: "1.5"
`

func TestLoadResourcesAndRestartPolicy(t *testing.T) {
	dir := writeManifest(t, manifestWithResourcesAndRestart)

	resolved, err := Load(dir, "")
	require.NoError(t, err)
	require.NotNil(t, resolved.Config.Resources)
	assert.Equal(t, int64(512*1024*1024), resolved.Config.Resources.MemoryBytes)
	assert.Equal(t, "on-failure", string(resolved.Config.RestartPolicy.Kind))
	assert.Equal(t, 5, resolved.Config.RestartPolicy.MaxRetries)
}

func TestLoadNoServersFails(t *testing.T) {
	dir := writeManifest(t, "service: checkout\nimage: checkout:v1\nservers: []\n")
	_, err := Load(dir, "")
	assert.ErrorIs(t, err, ErrNoServers)
}
