package tor

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"reformagkh/pkg/config"
)

// CheckConnectivity fetches checkURL through the proxied client once.
// Any transport error means the local Tor service is not usable.
// An empty URL or config.TorCheckOff skips the check.
func CheckConnectivity(ctx context.Context, client *http.Client, checkURL string, log *logrus.Entry) error {
	if checkURL == "" || checkURL == config.TorCheckOff {
		log.Warn("Tor connectivity check disabled")
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return fmt.Errorf("build connectivity check request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("tor isn't running or is not reachable (check %s): %w", checkURL, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	log.WithFields(logrus.Fields{"url": checkURL, "status": resp.StatusCode}).Info("Tor connectivity check succeeded")
	return nil
}
