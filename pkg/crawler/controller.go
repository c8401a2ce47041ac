package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webharvest/pkg/archive"
	"webharvest/pkg/config"
	"webharvest/pkg/fetch"
	"webharvest/pkg/frontier"
	"webharvest/pkg/models"
	"webharvest/pkg/parse"
	"webharvest/pkg/seed"
	"webharvest/pkg/utils"
)

// maxSitemapDepth bounds recursive sitemap-index expansion.
const maxSitemapDepth = 3

// Controller runs one crawl: a strictly sequential loop over a host-bound
// frontier, with politeness delays between fetches, trap and robots policy
// checks, and captures streamed into rotated archive segments. Page-level
// failures are recorded and skipped; only an archive write failure aborts
// the run.
type Controller struct {
	cfg     config.CrawlConfig
	seeds   *seed.SeedSet
	fetcher *fetch.Fetcher
	delayer *fetch.PolitenessDelayer
	robots  *fetch.RobotsHandler // nil when robots.txt is not honored
	queue   *frontier.Queue
	store   *frontier.VisitedStore
	writer  *archive.Writer
	output  *OutputManager
	traps   *TrapMatcher
	log     *logrus.Entry

	status  models.RunStatus
	summary models.CrawlSummary
}

// Deps are the collaborators the controller drives. All are constructed in
// main from the validated config; the controller takes ownership of none of
// them except the archive writer, which it closes at the end of Run so the
// final seal outcome can decide the run status.
type Deps struct {
	Seeds   *seed.SeedSet
	Fetcher *fetch.Fetcher
	Delayer *fetch.PolitenessDelayer
	Robots  *fetch.RobotsHandler
	Queue   *frontier.Queue
	Store   *frontier.VisitedStore
	Writer  *archive.Writer
	Output  *OutputManager
	Traps   *TrapMatcher
}

func NewController(cfg config.CrawlConfig, deps Deps, log *logrus.Entry) *Controller {
	return &Controller{
		cfg:     cfg,
		seeds:   deps.Seeds,
		fetcher: deps.Fetcher,
		delayer: deps.Delayer,
		robots:  deps.Robots,
		queue:   deps.Queue,
		store:   deps.Store,
		writer:  deps.Writer,
		output:  deps.Output,
		traps:   deps.Traps,
		log:     log,
		status:  models.RunStatusIdle,
	}
}

// Status returns the controller's current lifecycle state.
func (c *Controller) Status() models.RunStatus {
	return c.status
}

// errQuotaReached stops the crawl loop when the cumulative captured payload
// reaches the configured quota. It is a clean stop, not a failure.
var errQuotaReached = errors.New("download quota reached")

// Run executes the crawl to completion (frontier exhausted), quota stop,
// cancellation, or archive failure. The returned summary is valid in every
// case; err is non-nil only when the status is Failed.
func (c *Controller) Run(ctx context.Context) (models.CrawlSummary, error) {
	c.status = models.RunStatusRunning
	c.log.WithFields(logrus.Fields{
		"host":  c.seeds.Host,
		"depth": c.cfg.MaxDepth,
		"quota": c.cfg.QuotaBytes,
	}).Info("Crawl starting")

	runErr := c.run(ctx)

	// Closing the writer seals the open segment and cleans the staging
	// area. A seal failure is an archive failure like any other.
	if closeErr := c.writer.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	c.summary.Segments = c.writer.SegmentCount()

	switch {
	case runErr == nil:
		c.status = models.RunStatusCompleted
	case errors.Is(runErr, errQuotaReached):
		c.status = models.RunStatusQuotaExceeded
		runErr = nil
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		// Interruption is a clean early stop; everything captured so far
		// is sealed.
		c.log.Info("Crawl interrupted; archive sealed")
		c.status = models.RunStatusCompleted
		runErr = nil
	default:
		c.status = models.RunStatusFailed
	}
	c.summary.Status = c.status

	c.log.WithFields(logrus.Fields{
		"status":         c.status,
		"fetched":        c.summary.Fetched,
		"rejected":       c.summary.Rejected,
		"captured_bytes": c.summary.CapturedBytes,
		"segments":       c.summary.Segments,
	}).Info("Crawl finished")
	return c.summary, runErr
}

func (c *Controller) run(ctx context.Context) error {
	if err := c.enqueueSeeds(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok := c.queue.Pop()
		if !ok {
			return nil
		}
		if err := c.processEntry(ctx, entry); err != nil {
			return err
		}
	}
}

// enqueueSeeds loads the seed set into the frontier at depth 0. Sitemap
// seeds are expanded in place rather than enqueued; off-host seeds are
// excluded and logged but never fail the run.
func (c *Controller) enqueueSeeds(ctx context.Context) error {
	for i, u := range c.seeds.All() {
		if u.Hostname() != c.seeds.Host {
			c.rejectURL(u.String(), 0, "scope:"+u.Hostname())
			continue
		}
		if i > 0 && parse.IsSitemapURL(u.String()) {
			if err := c.expandSitemap(ctx, u, 0); err != nil {
				return err
			}
			continue
		}
		if _, err := c.queue.Push(u.String(), 0); err != nil {
			return err
		}
	}
	return nil
}

// expandSitemap fetches a sitemap, enqueues its on-host page URLs at depth 0,
// and recurses into child sitemaps up to maxSitemapDepth. Fetch or parse
// failures skip the sitemap; the pages it would have contributed are simply
// not crawled.
func (c *Controller) expandSitemap(ctx context.Context, u *url.URL, level int) error {
	if level >= maxSitemapDepth {
		c.log.WithField("sitemap", u.String()).Warn("Sitemap nesting too deep, skipping")
		return nil
	}
	smLog := c.log.WithField("sitemap", u.String())

	body, _, err := c.fetchBody(ctx, u)
	if err != nil {
		smLog.Warnf("Failed to fetch sitemap: %v", err)
		return c.ctxOrNil(ctx, err)
	}
	content, err := parse.ParseSitemap(body)
	if err != nil {
		smLog.Warnf("Failed to parse sitemap: %v", err)
		return nil
	}

	for _, child := range content.ChildMaps {
		cu, err := url.Parse(child)
		if err != nil || cu.Hostname() != c.seeds.Host {
			continue
		}
		if err := c.expandSitemap(ctx, cu, level+1); err != nil {
			return err
		}
	}

	enqueued := 0
	for _, page := range content.PageURLs {
		pu, err := url.Parse(page)
		if err != nil {
			continue
		}
		if pu.Hostname() != c.seeds.Host {
			c.rejectURL(page, 0, "scope:"+pu.Hostname())
			continue
		}
		if reason, trapped := c.traps.Match(pu); trapped {
			c.rejectURL(page, 0, reason)
			continue
		}
		fresh, err := c.queue.Push(page, 0)
		if err != nil {
			return err
		}
		if fresh {
			enqueued++
		}
	}
	smLog.WithField("enqueued", enqueued).Info("Expanded sitemap seed")
	return nil
}

// processEntry runs the per-page pipeline: robots check, politeness delay,
// fetch with retry, archive append, then link discovery. Page-level errors
// (fetch failures, robots denials) are logged and recorded; only archive
// write failures and quota exhaustion propagate.
func (c *Controller) processEntry(ctx context.Context, entry models.FrontierEntry) error {
	pageLog := c.log.WithFields(logrus.Fields{"url": entry.URL, "depth": entry.Depth})

	u, err := url.Parse(entry.URL)
	if err != nil {
		// Normalized before enqueue, so this should not happen.
		c.rejectURL(entry.URL, entry.Depth, "unparseable")
		return nil
	}

	if c.robots != nil && !c.robots.Allowed(ctx, u) {
		pageLog.Info("Disallowed by robots.txt")
		c.rejectURL(entry.URL, entry.Depth, utils.CategorizeError(utils.ErrRobotsDisallowed))
		return c.ctxOrNil(ctx, nil)
	}

	body, resp, err := c.fetchBody(ctx, u)
	if err != nil {
		pageLog.Warnf("Fetch failed: %v", err)
		c.rejectURL(entry.URL, entry.Depth, utils.CategorizeError(err))
		return c.ctxOrNil(ctx, err)
	}

	rec := &models.CaptureRecord{
		ID:        uuid.NewString(),
		Kind:      models.KindContent,
		TargetURI: entry.URL,
		Status:    resp.StatusCode,
		Headers:   flattenHeaders(resp.Header),
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}
	if err := c.writer.Append(rec); err != nil {
		// Unrecoverable: the archive is the whole point of the run.
		pageLog.Errorf("Archive append failed: %v", err)
		return err
	}
	segment := c.writer.CurrentSegment()
	if segment < 0 {
		segment = c.writer.SegmentCount() - 1
	}

	c.summary.Fetched++
	c.summary.CapturedBytes += rec.Size()
	if err := c.output.RecordFetched(entry.URL, resp.StatusCode, entry.Depth, rec.Size(), segment); err != nil {
		pageLog.Warnf("Failed to write fetched log: %v", err)
	}
	c.recordOutcome(entry.URL, models.PageStatusFetched, "", entry.Depth)

	if c.cfg.QuotaBytes > 0 && c.summary.CapturedBytes >= c.cfg.QuotaBytes {
		pageLog.WithField("captured_bytes", c.summary.CapturedBytes).Info("Download quota reached")
		return errQuotaReached
	}

	if entry.Depth < c.cfg.MaxDepth && isHTML(resp.Header.Get("Content-Type")) {
		c.discoverLinks(body, u, entry.Depth, pageLog)
	}
	return nil
}

// fetchBody applies the politeness delay, performs the fetch with retry, and
// fully reads the body. The response is returned with its body already
// closed; only headers and status remain meaningful.
func (c *Controller) fetchBody(ctx context.Context, u *url.URL) ([]byte, *http.Response, error) {
	if err := c.delayer.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.fetcher.FetchWithRetry(ctx, req)
	c.delayer.MarkRequest()
	if err != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading body of '%s': %v", utils.ErrResponseBodyRead, u, err)
	}
	return body, resp, nil
}

// discoverLinks extracts anchors from an HTML body and enqueues the on-host,
// non-trap ones at depth+1. Parse failures end discovery for this page only.
func (c *Controller) discoverLinks(body []byte, base *url.URL, depth int, pageLog *logrus.Entry) {
	links, err := parse.ExtractLinks(body, base)
	if err != nil {
		pageLog.Warnf("Link extraction failed: %v", err)
		return
	}

	enqueued := 0
	for _, link := range links {
		if link.Hostname() != c.seeds.Host {
			continue // Off-host links are expected, not logged individually
		}
		if reason, trapped := c.traps.Match(link); trapped {
			c.rejectURL(link.String(), depth+1, reason)
			continue
		}
		fresh, err := c.queue.Push(link.String(), depth+1)
		if err != nil {
			pageLog.Warnf("Failed to enqueue '%s': %v", link, err)
			continue
		}
		if fresh {
			enqueued++
		}
	}
	pageLog.WithFields(logrus.Fields{"links": len(links), "enqueued": enqueued}).Debug("Discovered links")
}

// rejectURL records a rejection in the outcome log, the visited store, and
// the run counters.
func (c *Controller) rejectURL(rawURL string, depth int, reason string) {
	c.summary.Rejected++
	if err := c.output.RecordRejected(rawURL, depth, reason); err != nil {
		c.log.Warnf("Failed to write rejected log: %v", err)
	}
	c.recordOutcome(rawURL, models.PageStatusRejected, reason, depth)
}

func (c *Controller) recordOutcome(rawURL, status, errorType string, depth int) {
	normalized, _, err := parse.ParseAndNormalize(rawURL)
	if err != nil {
		normalized = rawURL
	}
	entry := &models.PageDBEntry{
		Status:      status,
		ErrorType:   errorType,
		Depth:       depth,
		LastAttempt: time.Now().UTC(),
	}
	if err := c.store.RecordOutcome(normalized, entry); err != nil {
		c.log.Warnf("Failed to record outcome for '%s': %v", rawURL, err)
	}
}

// ctxOrNil propagates only cancellation out of a page-level failure path.
func (c *Controller) ctxOrNil(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	return nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		out[key] = strings.Join(values, ", ")
	}
	return out
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
