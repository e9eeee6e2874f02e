package config

import (
	"fmt"
	"strings"
	"time"

	"reformagkh/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	c.validateSite()

	torWarnings := c.validateTor()
	warnings = append(warnings, torWarnings...)

	outWarnings, err := c.validateOutput()
	if err != nil {
		return warnings, err
	}
	warnings = append(warnings, outWarnings...)

	// Reference inputs
	if c.RegionTablePath == "" {
		c.RegionTablePath = "atd.csv"
	}
	if c.AttributeMapPath == "" {
		c.AttributeMapPath = "attributes.tsv"
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}

	// Diagnostic stream
	if c.ErrorsLogPath == "" {
		c.ErrorsLogPath = "errors.txt"
	}
	if c.IDsLogPath == "" {
		c.IDsLogPath = "ids.txt"
	}

	// Cache-only needs somewhere to read pages from
	if c.CacheOnly {
		if c.OriginalsDir == "" {
			return warnings, fmt.Errorf("%w: cache_only requested but originals_dir was not specified", utils.ErrConfigValidation)
		}
		if c.Tor.Enabled {
			warnings = append(warnings, "with cache_only the tor settings have no effect")
		}
		if c.OverwriteOriginals {
			warnings = append(warnings, "with cache_only overwrite_originals has no effect")
			c.OverwriteOriginals = false
		}
	}

	if c.DelayPerRequest < 0 {
		warnings = append(warnings, "delay_per_request cannot be negative, disabling delay")
		c.DelayPerRequest = 0
	}

	if c.SemaphoreAcquireTimeout <= 0 {
		c.SemaphoreAcquireTimeout = 30 * time.Second
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

func (c *AppConfig) validateSite() {
	s := &c.Site
	if s.BaseURL == "" {
		s.BaseURL = "http://www.reformagkh.ru"
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.ListingPath == "" {
		s.ListingPath = "/myhouse/list"
	}
	if s.HousePath == "" {
		s.HousePath = "/myhouse/profile/view/"
	}
	if !strings.HasSuffix(s.HousePath, "/") {
		s.HousePath += "/"
	}
	if s.HouseLinkMarker == "" {
		s.HouseLinkMarker = "myhouse"
	}
	if s.ListingPageSize <= 0 {
		s.ListingPageSize = 10000
	}
}

func (c *AppConfig) validateTor() (warnings []string) {
	t := &c.Tor
	if t.SocksAddr == "" {
		t.SocksAddr = "127.0.0.1:9150"
	}
	if t.ControlAddr == "" {
		t.ControlAddr = "127.0.0.1:9151"
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 5
	}
	if t.RetryDelay <= 0 {
		t.RetryDelay = 3 * time.Second
	}
	if t.ControlTimeout <= 0 {
		t.ControlTimeout = 10 * time.Second
	}
	if t.CheckURL == "" {
		t.CheckURL = DefaultTorCheckURL
	}
	if t.Enabled && t.ControlPassword == "" {
		warnings = append(warnings, "tor control_password is empty; set TOR_CONTROL_PASSWORD if the control port requires one")
	}
	return warnings
}

func (c *AppConfig) validateOutput() (warnings []string, err error) {
	o := &c.Output
	if o.Parser == "" {
		o.Parser = ParserOriginal
	}
	if o.Format == "" {
		o.Format = FormatCSV
	}
	if o.Mode == "" {
		o.Mode = ModeAppend
	}
	if o.Table == "" {
		o.Table = "attrvals"
	}

	switch o.Parser {
	case ParserOriginal, ParserAttrList, ParserNone:
	default:
		return nil, fmt.Errorf("%w: unknown parser '%s' (want original, attrlist or none)", utils.ErrConfigValidation, o.Parser)
	}
	switch o.Format {
	case FormatCSV, FormatSQLite, FormatPostgres:
	default:
		return nil, fmt.Errorf("%w: unknown output format '%s' (want csv, sqlite or postgres)", utils.ErrConfigValidation, o.Format)
	}
	switch o.Mode {
	case ModeAppend, ModeOverwrite:
	default:
		return nil, fmt.Errorf("%w: unknown output mode '%s' (want append or overwrite)", utils.ErrConfigValidation, o.Mode)
	}

	if o.Parser == ParserNone {
		if o.Format != FormatCSV {
			warnings = append(warnings, "output format has no effect when parser=none")
		}
		return warnings, nil
	}
	if o.Format != FormatCSV && o.Parser != ParserAttrList {
		return nil, fmt.Errorf("%w: %s output works only for the attrlist parser", utils.ErrConfigValidation, o.Format)
	}
	if o.Path == "" {
		return nil, fmt.Errorf("%w: output path is required", utils.ErrConfigValidation)
	}
	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 40 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 10
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
