package fetch

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"webharvest/pkg/config"
	"webharvest/pkg/utils"
)

// NewClient creates the HTTP client shared by all fetches of one run.
// The redirect bound comes from config (max_redirect); exceeding it fails the
// fetch with ErrTooManyRedirects rather than following further hops.
func NewClient(cfg config.CrawlConfig, log *logrus.Entry) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           10,
		MaxIdleConnsPerHost:    2, // One host per run; keep the footprint small
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 1 << 20,
	}

	maxRedirect := cfg.MaxRedirect
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirect {
				return fmt.Errorf("%w: stopped after %d redirects", utils.ErrTooManyRedirects, maxRedirect)
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	return client
}
