package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"reformagkh/pkg/config"
	"reformagkh/pkg/crawler"
	"reformagkh/pkg/extract"
	reflog "reformagkh/pkg/log"
	"reformagkh/pkg/region"
	"reformagkh/pkg/utils"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// crawlOptions mirrors the crawl command's flags. Only flags the user set override the config file.
type crawlOptions struct {
	configPath    string
	envFile       string
	originalsDir  string
	overwrite     bool
	noTor         bool
	cacheOnly     bool
	parser        string
	outputFormat  string
	outputMode    string
	resume        bool
	writeStateLog bool
	logLevel      string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "reformagkh",
		Short:         "Crawler for the reformagkh.ru housing registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newCrawlCmd(stdout, stderr), newValidateCmd(stdout, stderr), newVersionCmd(stdout))
	return root
}

func newCrawlCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl <region-id> <output>",
		Short: "Crawl every house listed under a region id",
		Long: `Resolves the region id against the reference table, walks the house listing of
each resulting region and extracts every house page into <output>.

<output> is a CSV or SQLite file path, or a Postgres DSN with --output-format postgres.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := doCrawl(cmd.Context(), args[0], args[1], opts, cmd.Flags().Changed, stdout, stderr)
			if code != 0 {
				return fmt.Errorf("crawl exited with status %d", code)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "config.yaml", "Path to YAML config file")
	f.StringVar(&opts.envFile, "env-file", ".env", "Dotenv file with secrets such as TOR_CONTROL_PASSWORD")
	f.StringVar(&opts.originalsDir, "originals-dir", "", "Directory for archived house pages and cached house ids")
	f.BoolVarP(&opts.overwrite, "overwrite", "o", false, "Refetch house pages even when an archived copy exists")
	f.BoolVar(&opts.noTor, "no-tor", false, "Connect directly instead of through Tor")
	f.BoolVar(&opts.cacheOnly, "cache-only", false, "Use only archived pages and cached house ids, no network")
	f.StringVar(&opts.parser, "parser", config.ParserOriginal, "Extraction mode: original, attrlist or none")
	f.StringVar(&opts.outputFormat, "output-format", config.FormatCSV, "Output format: csv, sqlite or postgres (sqlite/postgres need --parser attrlist)")
	f.StringVar(&opts.outputMode, "output-mode", config.ModeAppend, "Output mode: append or overwrite (overwrite backs up the old file)")
	f.BoolVar(&opts.resume, "resume", false, "Keep the house ledger of the previous run and skip houses it marks successful")
	f.BoolVar(&opts.writeStateLog, "write-state-log", false, "Dump the house ledger to <state_dir>/<region-id>-state.txt after the run")
	f.StringVar(&opts.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error)")
	return cmd
}

func newValidateCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath, envFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and the reference inputs it names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := doValidate(configPath, envFile, stdout, stderr); code != 0 {
				return errors.New("configuration invalid")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file with secrets")
	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "reformagkh %s\n", version)
		},
	}
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cfg *config.AppConfig, output string, opts *crawlOptions, changed func(string) bool) {
	cfg.Output.Path = output
	if changed("originals-dir") {
		cfg.OriginalsDir = opts.originalsDir
	}
	if changed("overwrite") {
		cfg.OverwriteOriginals = opts.overwrite
	}
	if changed("no-tor") {
		cfg.Tor.Enabled = !opts.noTor
	}
	if changed("cache-only") {
		cfg.CacheOnly = opts.cacheOnly
	}
	if changed("parser") {
		cfg.Output.Parser = opts.parser
	}
	if changed("output-format") {
		cfg.Output.Format = opts.outputFormat
	}
	if changed("output-mode") {
		cfg.Output.Mode = opts.outputMode
	}
}

// doCrawl is the testable body of the crawl command. Returns the process exit code.
func doCrawl(ctx context.Context, regionID, output string, opts *crawlOptions, changed func(string) bool, stdout, stderr io.Writer) int {
	log, err := reflog.New(opts.logLevel, stderr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using 'info': %v", opts.logLevel, err)
	}

	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	applyFlags(cfg, output, opts, changed)

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	logAppConfig(cfg, log)

	session, err := crawler.NewSession(ctx, cfg, crawler.SessionOptions{Resume: opts.resume, LedgerTarget: regionID}, log)
	if err != nil {
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Failed to initialize: %v", err)
		return 1
	}

	summaries, runErr := crawler.NewCrawler(session).Run(ctx, regionID)

	if opts.writeStateLog && session.Ledger != nil {
		statePath := filepath.Join(cfg.StateDir, utils.SanitizeFilename(regionID)+"-state.txt")
		if err := session.Ledger.WriteStateLog(statePath); err != nil {
			log.Errorf("Error writing house state log: %v", err)
		}
	}
	if err := session.Close(); err != nil {
		log.Errorf("Error closing session: %v", err)
	}

	if len(summaries) > 0 {
		crawler.RenderSummary(stdout, summaries)
	}

	switch {
	case runErr == nil:
		log.Info("Crawl completed successfully.")
		return 0
	case errors.Is(runErr, context.Canceled):
		log.Warn("Crawl cancelled gracefully.")
		return 0
	default:
		log.WithField("error_type", utils.CategorizeError(runErr)).Errorf("Crawl finished with error: %v", runErr)
		return 1
	}
}

// doValidate loads and validates the config, then checks that the reference
// inputs it names can be read. Returns exit code (0 = success, 1 = error).
func doValidate(configPath, envFile string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.Output.Path == "" {
		// The crawl command always supplies one.
		cfg.Output.Path = "-"
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	hasError := false
	if _, err := region.LoadResolver(cfg.RegionTablePath); err != nil {
		fmt.Fprintf(stderr, "ERROR: region table: %v\n", err)
		hasError = true
	} else {
		fmt.Fprintf(stdout, "OK: region table %s\n", cfg.RegionTablePath)
	}
	if cfg.Output.Parser == config.ParserAttrList {
		attrs, err := extract.LoadAttributeMap(cfg.AttributeMapPath)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: attribute map: %v\n", err)
			hasError = true
		} else {
			fmt.Fprintf(stdout, "OK: attribute map %s (%d attributes)\n", cfg.AttributeMapPath, len(attrs))
		}
	}
	if hasError {
		return 1
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration.
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Site: %s (listing %s, houses %s, page size %d)",
		cfg.Site.BaseURL, cfg.Site.ListingPath, cfg.Site.HousePath, cfg.Site.ListingPageSize)
	log.Infof("Tor: enabled=%t socks=%s control=%s attempts=%d delay=%v",
		cfg.Tor.Enabled, cfg.Tor.SocksAddr, cfg.Tor.ControlAddr, cfg.Tor.MaxAttempts, cfg.Tor.RetryDelay)
	log.Infof("Output: parser=%s format=%s mode=%s table=%s",
		cfg.Output.Parser, cfg.Output.Format, cfg.Output.Mode, cfg.Output.Table)
	log.Infof("Inputs: regions=%s attributes=%s originals=%q cache_only=%t overwrite_originals=%t",
		cfg.RegionTablePath, cfg.AttributeMapPath, cfg.OriginalsDir, cfg.CacheOnly, cfg.OverwriteOriginals)
	log.Infof("State: dir=%s errors=%s ids=%s delay=%v",
		cfg.StateDir, cfg.ErrorsLogPath, cfg.IDsLogPath, cfg.DelayPerRequest)
}
