package fetch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

const defaultRobotsAgent = "reformagkh"

// RobotsPolicy holds the parsed robots.txt of the registry host.
type RobotsPolicy struct {
	data  *robotstxt.RobotsData
	agent string
}

// LoadRobots fetches {baseURL}/robots.txt through f. A missing file or a 4xx
// allows everything, as does a challenge page in place of the file.
func LoadRobots(ctx context.Context, f HTTPFetcher, baseURL, agent string, log *logrus.Entry) (*RobotsPolicy, error) {
	if agent == "" {
		agent = defaultRobotsAgent
	}
	robotsURL := baseURL + "/robots.txt"
	robotsLog := log.WithField("robots_url", robotsURL)
	robotsLog.Info("Fetching robots.txt...")

	res, err := f.Fetch(ctx, robotsURL)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch res.Status {
	case models.ResultOK:
		body = res.Value.Body
	case models.ResultBlocked:
		robotsLog.Warn("Challenge page instead of robots.txt, treating as allow-all")
	default:
		robotsLog.Infof("No robots.txt (%s), treating as allow-all", res.Reason)
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: robots.txt: %w", utils.ErrParsing, err)
	}
	return &RobotsPolicy{data: data, agent: agent}, nil
}

// Allowed reports whether path may be crawled by the configured agent.
func (p *RobotsPolicy) Allowed(path string) bool {
	return p.data.TestAgent(path, p.agent)
}
