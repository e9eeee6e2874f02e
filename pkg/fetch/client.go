package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"reformagkh/pkg/config"
)

// NewClient creates the HTTP client for the whole run. With Tor enabled every
// connection is dialled through the SOCKS5 proxy, so hostnames are resolved by Tor.
func NewClient(cfg *config.AppConfig, log *logrus.Entry) (*http.Client, error) {
	h := cfg.HTTPClientSettings

	dialer := &net.Dialer{
		Timeout:   h.DialerTimeout,
		KeepAlive: h.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          h.MaxIdleConns,
		MaxIdleConnsPerHost:   h.MaxIdleConnsPerHost,
		IdleConnTimeout:       h.IdleConnTimeout,
		TLSHandshakeTimeout:   h.TLSHandshakeTimeout,
		ExpectContinueTimeout: h.ExpectContinueTimeout,
	}

	mode := "direct"
	if Anonymized(cfg) {
		socks, err := proxy.SOCKS5("tcp", cfg.Tor.SocksAddr, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("configure SOCKS5 proxy %s: %w", cfg.Tor.SocksAddr, err)
		}
		ctxDialer, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("SOCKS5 dialer does not support contexts")
		}
		transport.Proxy = nil
		transport.DialContext = ctxDialer.DialContext
		mode = "tor " + cfg.Tor.SocksAddr
	}

	var rt http.RoundTripper = transport
	if cfg.Site.BrowserHeaders {
		rt = cloudflarebp.AddCloudFlareByPass(rt)
	}

	client := &http.Client{
		Timeout:   h.Timeout,
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	log.WithField("mode", mode).Info("HTTP client initialized.")
	return client, nil
}

// Anonymized reports whether requests go through Tor for this run.
func Anonymized(cfg *config.AppConfig) bool {
	return cfg.Tor.Enabled && !cfg.CacheOnly
}
