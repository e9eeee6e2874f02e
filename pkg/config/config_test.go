package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.NoError(t, err)
	assert.True(t, cfg.Tor.Enabled)
	assert.Empty(t, cfg.Site.BaseURL)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
site:
  base_url: http://mirror.example
  listing_page_size: 500
tor:
  enabled: false
  retry_delay: 2s
output:
  parser: attrlist
  format: sqlite
originals_dir: html_orig
delay_per_request: 250ms
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.example", cfg.Site.BaseURL)
	assert.Equal(t, 500, cfg.Site.ListingPageSize)
	assert.False(t, cfg.Tor.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Tor.RetryDelay)
	assert.Equal(t, ParserAttrList, cfg.Output.Parser)
	assert.Equal(t, FormatSQLite, cfg.Output.Format)
	assert.Equal(t, "html_orig", cfg.OriginalsDir)
	assert.Equal(t, 250*time.Millisecond, cfg.DelayPerRequest)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "site: [unclosed")
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "tor:\n  control_password: from-yaml\n")
	envPath := writeFile(t, dir, ".env", "TOR_CONTROL_PASSWORD=from-env\n")

	t.Setenv("TOR_CONTROL_PASSWORD", "")
	os.Unsetenv("TOR_CONTROL_PASSWORD")

	cfg, err := Load(path, envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Tor.ControlPassword)
}

func TestLoad_ProcessEnvWinsOverEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "TOR_CONTROL_PASSWORD=from-file\n")
	t.Setenv("TOR_CONTROL_PASSWORD", "from-process")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"), envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-process", cfg.Tor.ControlPassword)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "absent.yaml"), filepath.Join(dir, "absent.env"))
	assert.NoError(t, err)
}

func TestURLBuilders(t *testing.T) {
	cfg := Default()
	cfg.Output.Path = "out.csv"
	_, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, "http://www.reformagkh.ru/myhouse/list?tid=2280999", cfg.ListingURL("2280999"))
	assert.Equal(t, "http://www.reformagkh.ru/myhouse/profile/view/8625429", cfg.HouseURL("8625429"))

	assert.Empty(t, cfg.HouseIDCachePath("2280999"))
	cfg.OriginalsDir = "omsk"
	assert.Equal(t, filepath.Join("omsk", "house_ids_2280999.yaml"), cfg.HouseIDCachePath("2280999"))
}
