package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reformagkh/pkg/utils"
)

// Parser modes
const (
	ParserOriginal = "original" // Fixed positional schema
	ParserAttrList = "attrlist" // Declarative attribute map
	ParserNone     = "none"     // Download/archive only
)

// DefaultTorCheckURL is fetched through the proxy at startup. Set check_url to TorCheckOff to skip the check.
const (
	DefaultTorCheckURL = "http://google.com"
	TorCheckOff        = "off"
)

// Output formats
const (
	FormatCSV      = "csv"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
)

// Output modes
const (
	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

// SiteConfig describes the registry site's URL layout and page markers
type SiteConfig struct {
	BaseURL         string `yaml:"base_url"`
	ListingPath     string `yaml:"listing_path"`
	HousePath       string `yaml:"house_path"`
	HouseLinkMarker string `yaml:"house_link_marker"` // Substring an href must contain to count as a house link
	ListingPageSize int    `yaml:"listing_page_size"`
	UserAgent       string `yaml:"user_agent,omitempty"`
	BrowserHeaders  bool   `yaml:"browser_headers,omitempty"` // Send browser-like headers on every request
	RespectRobots   bool   `yaml:"respect_robots,omitempty"`  // Refuse to start if robots.txt disallows the listing or house paths
}

// TorConfig holds the anonymizing proxy settings
type TorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	SocksAddr       string        `yaml:"socks_addr"`
	ControlAddr     string        `yaml:"control_addr"`
	ControlPassword string        `yaml:"control_password,omitempty"` // Usually supplied via TOR_CONTROL_PASSWORD
	CheckURL        string        `yaml:"check_url,omitempty"`        // Fetched once at startup; "off" disables the check
	MaxAttempts     int           `yaml:"max_attempts,omitempty"`
	RetryDelay      time.Duration `yaml:"retry_delay,omitempty"`
	ControlTimeout  time.Duration `yaml:"control_timeout,omitempty"`
}

// OutputConfig selects parser and sink
type OutputConfig struct {
	Parser string `yaml:"parser"`
	Format string `yaml:"format"`
	Mode   string `yaml:"mode"`
	Path   string `yaml:"path,omitempty"` // CSV/SQLite file, or Postgres DSN
	Table  string `yaml:"table,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	Site                    SiteConfig       `yaml:"site"`
	Tor                     TorConfig        `yaml:"tor"`
	Output                  OutputConfig     `yaml:"output"`
	RegionTablePath         string           `yaml:"region_table"`
	AttributeMapPath        string           `yaml:"attribute_map"`
	OriginalsDir            string           `yaml:"originals_dir,omitempty"` // Archive of fetched house pages; empty disables archiving
	StateDir                string           `yaml:"state_dir"`
	ErrorsLogPath           string           `yaml:"errors_log"`
	IDsLogPath              string           `yaml:"ids_log"`
	CacheOnly               bool             `yaml:"cache_only,omitempty"`
	OverwriteOriginals      bool             `yaml:"overwrite_originals,omitempty"` // Refetch pages even if archived
	DelayPerRequest         time.Duration    `yaml:"delay_per_request,omitempty"`
	SemaphoreAcquireTimeout time.Duration    `yaml:"semaphore_acquire_timeout,omitempty"`
	HTTPClientSettings      HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default returns the configuration used when no config file exists.
// Tor is on by default, as the site throttles direct clients quickly.
func Default() AppConfig {
	return AppConfig{
		Tor: TorConfig{Enabled: true},
	}
}

// Load reads a YAML config file (if it exists) on top of Default, then applies
// environment overrides. envFile may name a dotenv file; a missing one is ignored.
func Load(path, envFile string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config '%s': %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only
	default:
		return nil, fmt.Errorf("read config '%s': %w", path, err)
	}

	if envFile != "" {
		// godotenv.Load never overrides variables already set in the process environment.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file '%s': %w", envFile, err)
		}
	}
	cfg.ApplyEnv()

	return &cfg, nil
}

// ApplyEnv overrides selected fields from REFORMAGKH_* and TOR_* environment variables.
func (c *AppConfig) ApplyEnv() {
	if v := os.Getenv("TOR_CONTROL_PASSWORD"); v != "" {
		c.Tor.ControlPassword = v
	}
	if v := os.Getenv("TOR_SOCKS_ADDR"); v != "" {
		c.Tor.SocksAddr = v
	}
	if v := os.Getenv("TOR_CONTROL_ADDR"); v != "" {
		c.Tor.ControlAddr = v
	}
	if v := os.Getenv("REFORMAGKH_BASE_URL"); v != "" {
		c.Site.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("REFORMAGKH_OUTPUT_DSN"); v != "" && c.Output.Format == FormatPostgres {
		c.Output.Path = v
	}
}

// ListingURL returns the listing endpoint for a region id, without paging parameters.
func (c *AppConfig) ListingURL(regionID string) string {
	return c.Site.BaseURL + c.Site.ListingPath + "?tid=" + regionID
}

// HouseURL returns the page URL of one house.
func (c *AppConfig) HouseURL(houseID string) string {
	return c.Site.BaseURL + c.Site.HousePath + houseID
}

// HouseIDCachePath returns the cached house-id list for one listing id, or "" without an originals dir.
func (c *AppConfig) HouseIDCachePath(listingID string) string {
	if c.OriginalsDir == "" {
		return ""
	}
	return filepath.Join(c.OriginalsDir, "house_ids_"+utils.SanitizeFilename(listingID)+".yaml")
}
