package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, parses, and caches robots.txt data per host and
// answers allow/deny queries for the configured agent. A fetch failure or a
// missing file results in a nil cache entry, which allows everything — the
// controller only consults robots when respect_robots is enabled.
type RobotsHandler struct {
	fetcher       *Fetcher
	userAgent     string
	robotsCache   map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	robotsCacheMu sync.Mutex
	log           *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler.
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// Allowed reports whether the configured agent may fetch targetURL.
// robots.txt is fetched once per host and cached for the run.
func (rh *RobotsHandler) Allowed(ctx context.Context, targetURL *url.URL) bool {
	host := targetURL.Hostname()

	rh.robotsCacheMu.Lock()
	robotsData, found := rh.robotsCache[host]
	rh.robotsCacheMu.Unlock()

	if !found {
		robotsData = rh.fetchRobots(ctx, targetURL)
		rh.robotsCacheMu.Lock()
		rh.robotsCache[host] = robotsData
		rh.robotsCacheMu.Unlock()
	}

	if robotsData == nil {
		return true // No usable robots.txt: allow
	}
	return robotsData.TestAgent(targetURL.RequestURI(), rh.userAgent)
}

// fetchRobots retrieves and parses /robots.txt for the target's host.
// Returns nil on any error, 4xx, or unparseable content.
func (rh *RobotsHandler) fetchRobots(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	if robotsURL.Scheme != "http" && robotsURL.Scheme != "https" {
		robotsURL.Scheme = "https"
	}
	robotsLog := rh.log.WithField("robots_url", robotsURL.String())
	robotsLog.Info("Fetching robots.txt...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		robotsLog.Warnf("Failed to create robots.txt request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", rh.userAgent)

	resp, err := rh.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		robotsLog.Warnf("robots.txt fetch failed, treating as allow-all: %v", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		robotsLog.Warnf("robots.txt parse failed, treating as allow-all: %v", err)
		return nil
	}
	robotsLog.Debug("robots.txt fetched and parsed")
	return data
}
