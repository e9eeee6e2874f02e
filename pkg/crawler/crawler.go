package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"

	"reformagkh/pkg/config"
	"reformagkh/pkg/models"
	"reformagkh/pkg/storage"
	"reformagkh/pkg/utils"
)

// Crawler walks the regions behind one region id and processes every listed house.
// Houses are handled strictly one after another.
type Crawler struct {
	s   *Session
	cfg *config.AppConfig
	log *logrus.Entry
}

// NewCrawler creates a Crawler over a built Session.
func NewCrawler(s *Session) *Crawler {
	return &Crawler{
		s:   s,
		cfg: s.Config,
		log: s.Log.WithField("component", "crawler"),
	}
}

// houseAttempt is the outcome of one fetch-and-extract pass over a house.
type houseAttempt struct {
	status models.ResultStatus
	reason string
	body   []byte
}

// Run resolves regionID and crawls each resulting region in table order.
// An unknown region id is not an error; the run just has nothing to do.
func (c *Crawler) Run(ctx context.Context, regionID string) ([]models.RegionSummary, error) {
	regions, err := c.s.Resolver.Resolve(regionID)
	if errors.Is(err, utils.ErrRegionNotFound) {
		c.log.WithField("region_id", regionID).Warn("Region not found in reference table, nothing to crawl")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.log.Infof("Region %s resolves to %d listing(s)", regionID, len(regions))
	defer c.logTotals()

	summaries := make([]models.RegionSummary, 0, len(regions))
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		summary, err := c.crawlRegion(ctx, r)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

func (c *Crawler) crawlRegion(ctx context.Context, r models.Region) (models.RegionSummary, error) {
	summary := models.RegionSummary{Region: r}
	listingID := r.ListingID()
	log := c.log.WithField("region", listingID)
	log.Infof("%s, %s, %s", r.Level1Name, r.Level2Name, r.Level3Name)

	ids, err := c.houseIDs(ctx, listingID, log)
	if err != nil {
		return summary, err
	}
	summary.Listed = len(ids)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		hlog := log.WithField("house_id", id)
		if c.alreadyDone(id, hlog) {
			summary.Skipped++
			continue
		}
		hlog.Infof("House %d/%d", i+1, len(ids))

		ok, err := c.processHouse(ctx, id, listingID, hlog)
		if err != nil {
			return summary, err
		}
		summary.Processed++
		if !ok {
			summary.Failed++
		}
	}
	log.Infof("Processed %d house_ids", summary.Processed)
	return summary, nil
}

// houseIDs lists a region's houses, from the network or, in cache-only mode, from the id cache.
// Fresh listings are cached when an originals dir is configured.
func (c *Crawler) houseIDs(ctx context.Context, listingID string, log *logrus.Entry) ([]models.HouseID, error) {
	cachePath := c.cfg.HouseIDCachePath(listingID)

	if c.cfg.CacheOnly {
		cache := storage.NewHouseIDCache(cachePath)
		if !cache.Exists() {
			log.WithField("path", cache.Path()).Warn("No cached house ids for region, skipping")
			return nil, nil
		}
		ids, err := cache.Load()
		if err != nil {
			return nil, err
		}
		log.Infof("Loaded %d cached house ids", len(ids))
		return ids, nil
	}

	ids, err := c.s.Walker.ListHouses(ctx, c.cfg.ListingURL(listingID))
	if err != nil {
		return nil, err
	}
	log.Infof("Listing returned %d house ids", len(ids))

	if cachePath != "" {
		backup, err := storage.NewHouseIDCache(cachePath).Save(listingID, ids, c.s.Now())
		if err != nil {
			log.Warnf("Failed to cache house ids: %v", err)
		} else if backup != "" {
			log.Debugf("Previous house id cache moved to %s", backup)
		}
	}
	return ids, nil
}

// alreadyDone reports whether a resumed run can skip the house.
func (c *Crawler) alreadyDone(id models.HouseID, log *logrus.Entry) bool {
	if c.s.Ledger == nil || !c.s.Resume {
		return false
	}
	status, _, err := c.s.Ledger.CheckHouseStatus(id)
	if err != nil {
		log.Warnf("Ledger lookup failed: %v", err)
		return false
	}
	if status == models.HouseStatusSuccess {
		log.Debug("Already processed in a previous run, skipping")
		return true
	}
	return false
}

// processHouse fetches and extracts one house. Through Tor, any unsuccessful pass gets one
// more try with a new identity and a fresh download. Returns false when the house failed.
// A returned error aborts the run.
func (c *Crawler) processHouse(ctx context.Context, id models.HouseID, listingID string, log *logrus.Entry) (bool, error) {
	houseURL := c.cfg.HouseURL(string(id))

	if c.s.Ledger != nil {
		if _, err := c.s.Ledger.MarkHousePending(id, listingID); err != nil {
			log.Warnf("Ledger update failed: %v", err)
		}
	}

	attempt, err := c.attemptHouse(ctx, id, houseURL, false, log)
	if err != nil {
		return false, err
	}
	if attempt.status != models.ResultOK && c.s.Fetcher.Anonymized() {
		log.WithField("status", attempt.status).Warnf("House attempt failed (%s), rotating Tor identity and retrying", attempt.reason)
		if err := c.s.Rotator.Rotate(ctx); err != nil {
			return false, err
		}
		if attempt, err = c.attemptHouse(ctx, id, houseURL, true, log); err != nil {
			return false, err
		}
	}

	now := c.s.Now()
	entry := &models.HouseDBEntry{ListingID: listingID, LastAttempt: now}
	if attempt.status == models.ResultOK {
		entry.Status = models.HouseStatusSuccess
		entry.ProcessedAt = now
		entry.ContentHash = utils.CalculateSHA256(attempt.body)
	} else {
		entry.Status = models.HouseStatusFailure
		entry.ErrorType = failureCategory(attempt)
		entry.Reason = attempt.reason
		log.WithFields(logrus.Fields{"url": houseURL, "error_type": entry.ErrorType}).Errorf("House failed: %s", attempt.reason)
		c.s.Diagnostics.RecordFailure(houseURL)
	}

	if c.s.Ledger != nil {
		if err := c.s.Ledger.UpdateHouseStatus(id, entry); err != nil {
			log.Warnf("Ledger update failed: %v", err)
		}
	}
	return attempt.status == models.ResultOK, nil
}

// attemptHouse runs one fetch and, for an obtained page, the configured extractor and sink.
func (c *Crawler) attemptHouse(ctx context.Context, id models.HouseID, houseURL string, refetch bool, log *logrus.Entry) (houseAttempt, error) {
	res, err := c.s.Fetcher.FetchHouse(ctx, id, refetch)
	if err != nil {
		return houseAttempt{}, err
	}
	if !res.IsOK() {
		return houseAttempt{status: res.Status, reason: res.Reason}, nil
	}
	page := res.Value
	c.s.Diagnostics.RecordFetched(houseURL, id)
	log.WithField("archived", page.FromArchive).Debug("House page obtained")

	switch c.cfg.Output.Parser {
	case config.ParserOriginal:
		rec := c.s.Fixed.Extract(page.Doc, id)
		if !rec.IsOK() {
			return houseAttempt{status: rec.Status, reason: rec.Reason}, nil
		}
		if err := c.s.Records.WriteRecord(rec.Value); err != nil {
			return houseAttempt{}, err
		}
	case config.ParserAttrList:
		entries := c.s.Declarative.Extract(page.Doc, id)
		if !entries.IsOK() {
			return houseAttempt{status: entries.Status, reason: entries.Reason}, nil
		}
		if err := c.s.Entries.WriteEntries(entries.Value); err != nil {
			return houseAttempt{}, err
		}
	}
	return houseAttempt{status: models.ResultOK, body: page.Body}, nil
}

// rotationCounter is implemented by rotators that talk to a real control port.
type rotationCounter interface {
	Rotations() int
}

// logTotals reports the run-wide page, failure and rotation counts.
func (c *Crawler) logTotals() {
	fields := logrus.Fields{
		"pages":    c.s.Diagnostics.Fetched(),
		"failures": c.s.Diagnostics.Failures(),
	}
	if rc, ok := c.s.Rotator.(rotationCounter); ok {
		fields["rotations"] = rc.Rotations()
	}
	c.log.WithFields(fields).Infof("Crawl totals: failed house URLs are listed in %s", c.cfg.ErrorsLogPath)
}

// failureCategory maps an unsuccessful attempt to the ledger's error type.
func failureCategory(a houseAttempt) string {
	switch a.status {
	case models.ResultBlocked:
		return utils.CategorizeError(utils.ErrChallengeBlocked)
	case models.ResultNotFound:
		return "Fetch_NotFound"
	default:
		return utils.CategorizeError(fmt.Errorf("%w: %s", utils.ErrExtractionFailed, a.reason))
	}
}

// RenderSummary prints the per-region tally as a table.
func RenderSummary(w io.Writer, summaries []models.RegionSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Level 1", "Level 2", "Level 3", "Listing", "Listed", "Processed", "Skipped", "Failed"})

	var listed, processed, skipped, failed int
	for _, s := range summaries {
		r := s.Region
		t.AppendRow(table.Row{r.Level1Name, r.Level2Name, r.Level3Name, r.ListingID(), s.Listed, s.Processed, s.Skipped, s.Failed})
		listed += s.Listed
		processed += s.Processed
		skipped += s.Skipped
		failed += s.Failed
	}
	t.AppendFooter(table.Row{"Total", "", "", len(summaries), listed, processed, skipped, failed})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
