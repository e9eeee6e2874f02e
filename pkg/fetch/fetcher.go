package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"reformagkh/pkg/config"
	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// Page is a fetched (or archived) HTML document with its raw bytes.
type Page struct {
	URL         string
	Body        []byte
	Doc         *goquery.Document
	FromArchive bool
}

// HTTPFetcher is what the listing walker and the crawler need from the content fetcher.
type HTTPFetcher interface {
	Fetch(ctx context.Context, rawURL string) (models.Result[*Page], error)
	FetchHouse(ctx context.Context, id models.HouseID, refetch bool) (models.Result[*Page], error)
	Anonymized() bool
}

// Fetcher retrieves pages with the retry policy of the selected transport:
// direct mode makes exactly one attempt, Tor mode up to Tor.MaxAttempts with a fixed pause.
// A returned error is always fatal for the run; per-page outcomes travel in the Result.
type Fetcher struct {
	client      *http.Client
	cfg         *config.AppConfig
	log         *logrus.Entry
	slot        *semaphore.Weighted // One request in flight, ever
	limiter     *RateLimiter
	archive     *Archive // nil when no originals dir is configured
	maxAttempts int
	retryDelay  time.Duration
}

// NewFetcher creates a Fetcher. archive may be nil.
func NewFetcher(client *http.Client, cfg *config.AppConfig, archive *Archive, log *logrus.Entry) *Fetcher {
	f := &Fetcher{
		client:      client,
		cfg:         cfg,
		log:         log.WithField("component", "fetcher"),
		slot:        semaphore.NewWeighted(1),
		limiter:     NewRateLimiter(cfg.DelayPerRequest, log),
		archive:     archive,
		maxAttempts: 1,
	}
	if Anonymized(cfg) {
		f.maxAttempts = cfg.Tor.MaxAttempts
		f.retryDelay = cfg.Tor.RetryDelay
	}
	return f
}

// Anonymized reports whether this fetcher routes through Tor, i.e. whether identity rotation is possible.
func (f *Fetcher) Anonymized() bool {
	return Anonymized(f.cfg)
}

// Fetch retrieves a URL and classifies the page. Challenge pages come back as Blocked,
// 4xx and other non-retryable statuses as NotFound. Exhausting the attempt budget
// returns an error wrapping utils.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (models.Result[*Page], error) {
	reqLog := f.log.WithField("url", rawURL)
	if f.Anonymized() {
		reqLog.Info("TOR retrieving")
	} else {
		reqLog.Info("Directly retrieving")
	}

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": f.maxAttempts, "delay": f.retryDelay}).Warn("Retrying request...")
			if err := sleepCtx(ctx, f.retryDelay); err != nil {
				return models.Result[*Page]{}, fmt.Errorf("context cancelled during retry delay after error: %w", errors.Join(err, lastErr))
			}
		}

		body, retryable, err := f.attempt(ctx, rawURL)
		if err == nil {
			return classify(rawURL, body), nil
		}
		if ctx.Err() != nil {
			return models.Result[*Page]{}, ctx.Err()
		}
		if !retryable {
			reqLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Not retrying: %v", err)
			return models.NotFound[*Page](err.Error()), nil
		}
		reqLog.WithField("attempt", attempt).Errorf("Fetch attempt failed: %v", err)
		lastErr = err
	}

	if f.maxAttempts == 1 {
		return models.Result[*Page]{}, fmt.Errorf("%w: %s: %w", utils.ErrFetch, rawURL, lastErr)
	}
	reqLog.Errorf("Session time out: all %d attempts failed", f.maxAttempts)
	return models.Result[*Page]{}, fmt.Errorf("%w: session time out on %s: %w", utils.ErrFetch, rawURL,
		fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr))
}

// FetchHouse returns a house page, preferring the archived copy unless refetch or
// overwrite_originals is set. In cache-only mode the network is never touched and a
// missing archive entry is NotFound. Freshly fetched pages are archived before return.
func (f *Fetcher) FetchHouse(ctx context.Context, id models.HouseID, refetch bool) (models.Result[*Page], error) {
	houseURL := f.cfg.HouseURL(string(id))
	houseLog := f.log.WithField("house_id", id)

	if f.archive != nil && f.archive.Has(id) && (f.cfg.CacheOnly || (!refetch && !f.cfg.OverwriteOriginals)) {
		body, err := f.archive.Read(id)
		if err != nil {
			return models.Failed[*Page](err.Error()), nil
		}
		houseLog.Debugf("Using archived page %s", f.archive.Path(id))
		res := classify(houseURL, body)
		if res.IsOK() {
			res.Value.FromArchive = true
		}
		return res, nil
	}

	if f.cfg.CacheOnly {
		reason := "no archived page for house " + string(id)
		if f.archive != nil {
			reason = "cache file " + f.archive.Path(id) + " does not exist"
		}
		houseLog.Info(reason + ", skipping")
		return models.NotFound[*Page](reason), nil
	}

	res, err := f.Fetch(ctx, houseURL)
	if err != nil || !res.IsOK() {
		return res, err
	}
	if f.archive != nil {
		if err := f.archive.Write(id, res.Value.Body); err != nil {
			houseLog.Errorf("Failed to archive page: %v", err)
		}
	}
	return res, nil
}

// attempt performs one request. retryable is false for statuses that another try will not fix.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (body []byte, retryable bool, err error) {
	slotCtx := ctx
	if f.cfg.SemaphoreAcquireTimeout > 0 {
		var cancel context.CancelFunc
		slotCtx, cancel = context.WithTimeout(ctx, f.cfg.SemaphoreAcquireTimeout)
		defer cancel()
	}
	if err := f.slot.Acquire(slotCtx, 1); err != nil {
		return nil, true, fmt.Errorf("%w: %w", utils.ErrSemaphoreTimeout, err)
	}
	defer f.slot.Release(1)

	f.limiter.Wait(ctx)
	defer f.limiter.Mark()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	if f.cfg.Site.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.Site.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
		}
		return data, false, nil
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, resp.StatusCode, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, resp.StatusCode, resp.Status)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, resp.StatusCode, resp.Status)
	default:
		return nil, false, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, resp.StatusCode, resp.Status)
	}
}

// classify parses a body and tags challenge pages as Blocked.
func classify(rawURL string, body []byte) models.Result[*Page] {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.Failed[*Page](fmt.Errorf("%w: HTML: %w", utils.ErrParsing, err).Error())
	}
	if IsChallenge(doc, body) {
		return models.Blocked[*Page]("anti-bot challenge page at " + rawURL)
	}
	return models.Ok(&Page{URL: rawURL, Body: body, Doc: doc})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
