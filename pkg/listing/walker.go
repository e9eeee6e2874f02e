package listing

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"reformagkh/pkg/config"
	"reformagkh/pkg/fetch"
	"reformagkh/pkg/models"
	"reformagkh/pkg/tor"
	"reformagkh/pkg/utils"
)

const (
	countPanelSelector = "div.clearfix"
	countCellSelector  = "table.col_list td"
	countUnitSuffix    = " ед."
	houseIDSegment     = 4 // "/myhouse/profile/view/{id}" split on "/"
)

// PageCount returns how many listing pages are requested for a result count.
// A count that is an exact multiple of pageSize still requests one extra, empty page.
func PageCount(size, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return size/pageSize + 1
}

// Walker enumerates the house ids of one listing, following its pages.
type Walker struct {
	fetcher fetch.HTTPFetcher
	rotator tor.Rotator
	site    config.SiteConfig
	log     *logrus.Entry
}

// NewWalker creates a Walker. rotator is only used when the fetcher is anonymized.
func NewWalker(fetcher fetch.HTTPFetcher, rotator tor.Rotator, site config.SiteConfig, log *logrus.Entry) *Walker {
	return &Walker{
		fetcher: fetcher,
		rotator: rotator,
		site:    site,
		log:     log.WithField("component", "listing_walker"),
	}
}

// ListHouses returns house ids in page order, pages ascending, without dedup.
// Blocked pages are fatal in direct mode and retried after a rotation otherwise.
func (w *Walker) ListHouses(ctx context.Context, listingURL string) ([]models.HouseID, error) {
	size, err := w.ResultCount(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		w.log.WithField("url", listingURL).Warn("Listing reports 0 houses, refetching once")
		if size, err = w.ResultCount(ctx, listingURL); err != nil {
			return nil, err
		}
	}

	pages := PageCount(size, w.site.ListingPageSize)
	w.log.WithFields(logrus.Fields{"url": listingURL, "size": size, "pages": pages}).Info("Walking listing")

	var ids []models.HouseID
	for n := 1; n <= pages; n++ {
		pageURL := fmt.Sprintf("%s&page=%d&limit=%d", listingURL, n, w.site.ListingPageSize)
		page, err := w.fetchUnblocked(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		found := HouseLinks(page.Doc, w.site.HouseLinkMarker)
		w.log.WithFields(logrus.Fields{"page": n, "houses": len(found)}).Debug("Listing page parsed")
		ids = append(ids, found...)
	}
	return ids, nil
}

// ResultCount fetches the listing's summary page and parses the number of houses it reports.
func (w *Walker) ResultCount(ctx context.Context, listingURL string) (int, error) {
	page, err := w.fetchUnblocked(ctx, listingURL)
	if err != nil {
		return 0, err
	}
	return ParseResultCount(page.Doc)
}

// ParseResultCount reads the fourth cell of the col_list table in the second clearfix panel.
// An absent or empty cell counts as zero.
func ParseResultCount(doc *goquery.Document) (int, error) {
	cell := doc.Find(countPanelSelector).Eq(1).Find(countCellSelector).Eq(3)
	text := strings.ReplaceAll(cell.Text(), countUnitSuffix, "")
	text = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\n' || r == '\t' || r == '\r' {
			return -1
		}
		return r
	}, text)
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: listing result count %q: %w", utils.ErrParsing, text, err)
	}
	return n, nil
}

// HouseLinks returns the ids of every table-cell link whose href contains marker.
func HouseLinks(doc *goquery.Document, marker string) []models.HouseID {
	var ids []models.HouseID
	doc.Find("td").Each(func(_ int, td *goquery.Selection) {
		// Only the first link of a cell counts.
		href, ok := td.Find("a").First().Attr("href")
		if !ok || !strings.Contains(href, marker) {
			return
		}
		if id := houseIDFromHref(href); id != "" {
			ids = append(ids, models.HouseID(id))
		}
	})
	return ids
}

// houseIDFromHref takes the fifth "/"-separated segment of the link path.
func houseIDFromHref(href string) string {
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}
	segments := strings.Split(path, "/")
	if len(segments) <= houseIDSegment {
		return ""
	}
	return segments[houseIDSegment]
}

// fetchUnblocked fetches until the page is not a challenge, rotating identities in between.
func (w *Walker) fetchUnblocked(ctx context.Context, pageURL string) (*fetch.Page, error) {
	for {
		res, err := w.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		switch res.Status {
		case models.ResultOK:
			return res.Value, nil
		case models.ResultBlocked:
			if !w.fetcher.Anonymized() {
				w.log.WithField("url", pageURL).Error("Captcha received: the limit of connections was likely exceeded, quitting")
				return nil, fmt.Errorf("%w: %s", utils.ErrChallengeBlocked, pageURL)
			}
			w.log.WithField("url", pageURL).Warn("Captcha received, rotating Tor identity")
			if err := w.rotator.Rotate(ctx); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: listing page %s: %s", utils.ErrFetch, pageURL, res.Reason)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
