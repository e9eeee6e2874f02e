package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reformagkh/pkg/config"
	"reformagkh/pkg/extract"
	"reformagkh/pkg/fetch"
	"reformagkh/pkg/listing"
	"reformagkh/pkg/region"
	"reformagkh/pkg/sink"
	"reformagkh/pkg/storage"
	"reformagkh/pkg/tor"
	"reformagkh/pkg/utils"
)

const ledgerGCInterval = 10 * time.Minute

// SessionOptions carries the run switches that do not live in the config file.
type SessionOptions struct {
	Resume       bool   // Keep the house ledger of a previous run and skip its successes
	LedgerTarget string // Names the ledger directory, usually the requested region id
}

// Session holds every component of one run. It is built once and handed to the Crawler;
// nothing in the crawl reads package-level state.
type Session struct {
	RunID  string
	Config *config.AppConfig
	Log    *logrus.Entry

	Client   *http.Client
	Fetcher  fetch.HTTPFetcher
	Rotator  tor.Rotator
	Walker   *listing.Walker
	Resolver *region.Resolver

	Fixed       *extract.FixedExtractor       // Set for the original parser
	Declarative *extract.DeclarativeExtractor // Set for the attrlist parser
	Records     sink.RecordSink               // Set for the original parser
	Entries     sink.EntrySink                // Set for the attrlist parser

	Ledger      storage.Ledger // nil disables resume tracking
	Diagnostics *Diagnostics

	Resume bool
	Now    func() time.Time

	closers []func() error
}

// NewSession wires all components from a validated config. On error, anything
// already opened is closed again.
func NewSession(ctx context.Context, cfg *config.AppConfig, opts SessionOptions, logger *logrus.Logger) (s *Session, err error) {
	runID := uuid.NewString()
	log := logger.WithField("run_id", runID)

	s = &Session{
		RunID:  runID,
		Config: cfg,
		Log:    log,
		Resume: opts.Resume,
		Now:    time.Now,
	}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	s.Client, err = fetch.NewClient(cfg, log)
	if err != nil {
		return s, err
	}

	var archive *fetch.Archive
	if cfg.OriginalsDir != "" {
		if archive, err = fetch.NewArchive(cfg.OriginalsDir); err != nil {
			return s, err
		}
	}
	fetcher := fetch.NewFetcher(s.Client, cfg, archive, log)
	s.Fetcher = fetcher

	if fetcher.Anonymized() {
		if err = tor.CheckConnectivity(ctx, s.Client, cfg.Tor.CheckURL, log); err != nil {
			return s, err
		}
		s.Rotator = tor.NewControlRotator(cfg.Tor, log)
	} else {
		s.Rotator = tor.NoopRotator{}
	}
	s.Walker = listing.NewWalker(fetcher, s.Rotator, cfg.Site, log)

	if cfg.Site.RespectRobots && !cfg.CacheOnly {
		if err = checkRobots(ctx, fetcher, cfg, log); err != nil {
			return s, err
		}
	}

	if s.Resolver, err = region.LoadResolver(cfg.RegionTablePath); err != nil {
		return s, err
	}

	if err = s.openOutput(); err != nil {
		return s, err
	}

	if s.Diagnostics, err = OpenDiagnostics(cfg.ErrorsLogPath, cfg.IDsLogPath, log); err != nil {
		return s, err
	}
	s.closers = append(s.closers, s.Diagnostics.Close)

	target := opts.LedgerTarget
	if target == "" {
		target = "run"
	}
	store, err := storage.NewBadgerStore(ctx, cfg.StateDir, target, opts.Resume, log)
	if err != nil {
		return s, err
	}
	s.Ledger = store
	gcCtx, stopGC := context.WithCancel(ctx)
	s.closers = append(s.closers, store.Close, func() error { stopGC(); return nil })
	go store.RunGC(gcCtx, ledgerGCInterval)

	if opts.Resume {
		known, _ := store.GetHouseCount()
		incomplete, scanErrors, err := store.IncompleteHouses(ctx)
		if err != nil {
			return s, err
		}
		log.WithField("scan_errors", scanErrors).Infof("Resuming: ledger knows %d houses, %d pending or failed", known, len(incomplete))
	}

	log.WithFields(logrus.Fields{
		"parser": cfg.Output.Parser,
		"format": cfg.Output.Format,
		"tor":    fetcher.Anonymized(),
	}).Info("Session initialized")
	return s, nil
}

// checkRobots refuses the run when robots.txt disallows the listing or house pages.
func checkRobots(ctx context.Context, f fetch.HTTPFetcher, cfg *config.AppConfig, log *logrus.Entry) error {
	policy, err := fetch.LoadRobots(ctx, f, cfg.Site.BaseURL, cfg.Site.UserAgent, log)
	if err != nil {
		return err
	}
	for _, path := range []string{cfg.Site.ListingPath, cfg.Site.HousePath} {
		if !policy.Allowed(path) {
			return fmt.Errorf("%w: robots.txt disallows %s (set site.respect_robots to false to override)", utils.ErrConfigValidation, path)
		}
	}
	log.Info("robots.txt allows the listing and house paths")
	return nil
}

// openOutput builds the extractor and sink for the configured parser.
func (s *Session) openOutput() error {
	cfg := s.Config
	now := s.Now()
	switch cfg.Output.Parser {
	case config.ParserOriginal:
		records, err := sink.OpenRecordSink(cfg.Output, now, s.Log)
		if err != nil {
			return err
		}
		s.Fixed = extract.NewFixedExtractor(cfg.Site.BaseURL)
		s.Records = records
		s.closers = append(s.closers, records.Close)
	case config.ParserAttrList:
		attrs, err := extract.LoadAttributeMap(cfg.AttributeMapPath)
		if err != nil {
			return err
		}
		entries, err := sink.OpenEntrySink(cfg.Output, now, s.Log)
		if err != nil {
			return err
		}
		s.Log.Infof("Loaded %d attributes from %s", len(attrs), cfg.AttributeMapPath)
		s.Declarative = extract.NewDeclarativeExtractor(attrs)
		s.Entries = entries
		s.closers = append(s.closers, entries.Close)
	case config.ParserNone:
		s.Log.Info("Parser disabled; pages are fetched and archived only")
	default:
		return fmt.Errorf("unknown parser %q", cfg.Output.Parser)
	}
	return nil
}

// Close releases sinks, diagnostic files and the ledger in reverse opening order.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
