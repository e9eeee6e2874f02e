package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reformagkh/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func validConfig() AppConfig {
	cfg := Default()
	cfg.Output.Path = "housedata.csv"
	return cfg
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := validConfig()
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, "http://www.reformagkh.ru", cfg.Site.BaseURL)
	assert.Equal(t, "/myhouse/list", cfg.Site.ListingPath)
	assert.Equal(t, "/myhouse/profile/view/", cfg.Site.HousePath)
	assert.Equal(t, "myhouse", cfg.Site.HouseLinkMarker)
	assert.Equal(t, 10000, cfg.Site.ListingPageSize)

	assert.Equal(t, "127.0.0.1:9150", cfg.Tor.SocksAddr)
	assert.Equal(t, "127.0.0.1:9151", cfg.Tor.ControlAddr)
	assert.Equal(t, 5, cfg.Tor.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Tor.RetryDelay)
	assert.Equal(t, DefaultTorCheckURL, cfg.Tor.CheckURL)

	assert.Equal(t, ParserOriginal, cfg.Output.Parser)
	assert.Equal(t, FormatCSV, cfg.Output.Format)
	assert.Equal(t, ModeAppend, cfg.Output.Mode)
	assert.Equal(t, "attrvals", cfg.Output.Table)

	assert.Equal(t, "atd.csv", cfg.RegionTablePath)
	assert.Equal(t, "attributes.tsv", cfg.AttributeMapPath)
	assert.Equal(t, "./crawler_state", cfg.StateDir)
	assert.Equal(t, "errors.txt", cfg.ErrorsLogPath)
	assert.Equal(t, "ids.txt", cfg.IDsLogPath)
	assert.Equal(t, 30*time.Second, cfg.SemaphoreAcquireTimeout)

	assert.Equal(t, 40*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)

	assert.True(t, containsWarning(warnings, "state_dir is empty"))
	assert.True(t, containsWarning(warnings, "control_password is empty"))
}

func TestAppConfig_Validate_NormalizesSitePaths(t *testing.T) {
	cfg := validConfig()
	cfg.Site.BaseURL = "http://mirror.example/"
	cfg.Site.HousePath = "/house/view"
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.example", cfg.Site.BaseURL)
	assert.Equal(t, "/house/view/", cfg.Site.HousePath)
}

func TestAppConfig_Validate_OutputErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AppConfig)
		errMsg string
	}{
		{"unknown parser", func(c *AppConfig) { c.Output.Parser = "fancy" }, "unknown parser"},
		{"unknown format", func(c *AppConfig) { c.Output.Format = "xlsx" }, "unknown output format"},
		{"unknown mode", func(c *AppConfig) { c.Output.Mode = "merge" }, "unknown output mode"},
		{"sqlite needs attrlist", func(c *AppConfig) { c.Output.Format = FormatSQLite }, "works only for the attrlist parser"},
		{"postgres needs attrlist", func(c *AppConfig) { c.Output.Format = FormatPostgres }, "works only for the attrlist parser"},
		{"missing output path", func(c *AppConfig) { c.Output.Path = "" }, "output path is required"},
		{"cache only without originals", func(c *AppConfig) { c.CacheOnly = true }, "originals_dir was not specified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAppConfig_Validate_ParserNone(t *testing.T) {
	cfg := Default()
	cfg.Output.Parser = ParserNone
	cfg.Output.Format = FormatSQLite

	warnings, err := cfg.Validate()
	require.NoError(t, err, "parser none needs no output path")
	assert.True(t, containsWarning(warnings, "no effect when parser=none"))
}

func TestAppConfig_Validate_CacheOnly(t *testing.T) {
	cfg := validConfig()
	cfg.CacheOnly = true
	cfg.OriginalsDir = "omsk"
	cfg.OverwriteOriginals = true

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "tor settings have no effect"))
	assert.True(t, containsWarning(warnings, "overwrite_originals has no effect"))
	assert.False(t, cfg.OverwriteOriginals)
}

func TestAppConfig_Validate_NegativeDelay(t *testing.T) {
	cfg := validConfig()
	cfg.DelayPerRequest = -time.Second
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.DelayPerRequest)
	assert.True(t, containsWarning(warnings, "delay_per_request cannot be negative"))
}

func TestAppConfig_Validate_PreservesValues(t *testing.T) {
	cfg := validConfig()
	cfg.Tor.MaxAttempts = 7
	cfg.Tor.RetryDelay = 10 * time.Second
	cfg.Tor.ControlPassword = "secret"
	cfg.StateDir = "/state"

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Tor.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Tor.RetryDelay)
	assert.False(t, containsWarning(warnings, "state_dir"))
	assert.False(t, containsWarning(warnings, "control_password"))
}

func TestAppConfig_Validate_TorCheckURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"default", "", DefaultTorCheckURL},
		{"custom", "https://check.torproject.org/", "https://check.torproject.org/"},
		{"opt out", TorCheckOff, TorCheckOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Tor.CheckURL = tt.in
			_, err := cfg.Validate()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Tor.CheckURL)

			_, err = cfg.Validate()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Tor.CheckURL, "validate is idempotent")
		})
	}
}
