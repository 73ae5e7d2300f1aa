package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("detail", "low", "")
	fs.String("proxy", "", "")
	fs.String("castlight-api", "v1", "")
	fs.Bool("allow-delete", false, "")
	fs.Duration("timeout", 0, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, Low, cfg.DetailLevel)
	assert.Equal(t, "https://api.tink.se", cfg.Tink.URL)
	assert.Equal(t, "https://api.tink.se/connector", cfg.Tink.ConnectorURL)
	assert.Equal(t, "v1", cfg.Castlight.APIVersion)
	assert.Equal(t, 5*time.Second, cfg.Castlight.Wait)
	assert.Equal(t, ';', cfg.Delimiter())
	assert.False(t, cfg.Tink.AllowDelete)
	assert.Empty(t, cfg.Proxy.URL())
}

func TestBuildFlagsOverrideDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	fs := testFlags(t, "--detail", "HIGH", "--proxy", "proxy.local:3128", "--castlight-api", "v2", "--allow-delete", "--timeout", "30s")

	cfg, err := Build("", fs)
	require.NoError(t, err)

	assert.Equal(t, High, cfg.DetailLevel)
	assert.Equal(t, "v2", cfg.Castlight.APIVersion)
	assert.True(t, cfg.Tink.AllowDelete)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "http://proxy.local:3128", cfg.Proxy.URL())
}

func TestBuildReadsEnvironmentAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CATPOC_TINK_CLIENT_SECRET=from-dotenv\n"), 0o600))
	t.Setenv("CATPOC_TINK_CLIENT_ID", "client-123")
	t.Cleanup(func() { os.Unsetenv("CATPOC_TINK_CLIENT_SECRET") })

	cfg, err := Build("", testFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "client-123", cfg.Tink.ClientID)
	assert.Equal(t, "from-dotenv", cfg.Tink.ClientSecret)
}

func TestBuildConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catpoc.yaml")
	content := `detail_level: medium
csv:
  delimiter: ","
castlight:
  api_version: v2
  wait: 2s
files:
  in_pattern: in/*.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Build(path, nil)
	require.NoError(t, err)

	assert.Equal(t, Medium, cfg.DetailLevel)
	assert.Equal(t, ',', cfg.Delimiter())
	assert.Equal(t, "v2", cfg.Castlight.APIVersion)
	assert.Equal(t, 2*time.Second, cfg.Castlight.Wait)
	assert.Equal(t, "in/*.csv", cfg.Files.InPattern)
	assert.Equal(t, "data/TinkResp*.csv", cfg.Files.OutPattern)
}

func TestBuildRejectsInvalidValues(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Build("", testFlags(t, "--castlight-api", "v3"))
	assert.ErrorContains(t, err, "unsupported castlight api version")

	_, err = Build("", testFlags(t, "--detail", "verbose"))
	assert.ErrorContains(t, err, "unknown detail level")

	_, err = Build(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestParseDetailLevel(t *testing.T) {
	for in, want := range map[string]DetailLevel{"": Low, "low": Low, " Medium ": Medium, "high": High} {
		got, err := ParseDetailLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
