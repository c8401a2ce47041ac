package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"webharvest/pkg/archive"
	"webharvest/pkg/config"
	"webharvest/pkg/crawler"
	"webharvest/pkg/fetch"
	"webharvest/pkg/frontier"
	"webharvest/pkg/models"
	"webharvest/pkg/pipeline"
	"webharvest/pkg/seed"
	"webharvest/pkg/utils"
)

const usageText = `Usage: webharvest <command> [flags]

Commands:
  crawl     Crawl a host and archive the responses
  extract   Extract and filter documents from archive segments

Run 'webharvest <command> -h' for command flags.`

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usageText)
		os.Exit(2)
	}

	var exitCode int
	switch os.Args[1] {
	case "crawl":
		exitCode = runCrawl(os.Args[2:], log)
	case "extract":
		exitCode = runExtract(os.Args[2:], log)
	case "-h", "--help", "help":
		fmt.Println(usageText)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s\n", os.Args[1], usageText)
		exitCode = 2
	}
	os.Exit(exitCode)
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if ctx.Err() == context.Canceled {
			log.Warn("Shutdown signal received, finishing up...")
		}
	}()
	return ctx, cancel
}

func setLogLevel(log *logrus.Logger, levelFlag string) {
	level, err := logrus.ParseLevel(levelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using 'info'. Error: %v", levelFlag, err)
		return
	}
	log.SetLevel(level)
}

func runCrawl(args []string, log *logrus.Logger) int {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)

	seedSpec := fs.String("seed", "", "Seed: an absolute http(s) URI or a seed-list file (required)")
	prefix := fs.String("prefix", "", "Output name prefix for segments and logs (required)")
	outDir := fs.String("out", "", "Archive output directory")
	depth := fs.Int("depth", config.DefaultMaxDepth, "Maximum link depth from the seeds")
	wait := fs.Duration("wait", config.DefaultWait, "Politeness delay between fetches")
	randomWait := fs.Bool("random-wait", true, "Jitter the politeness delay between 0.5x and 1.5x")
	timeout := fs.Duration("timeout", config.DefaultTimeout, "Per-request timeout")
	tries := fs.Int("tries", config.DefaultTries, "Fetch attempts per URL")
	maxRedirect := fs.Int("max-redirect", config.DefaultMaxRedirect, "Redirect bound per fetch")
	quota := fs.Int64("quota", 0, "Cumulative download quota in bytes (0 = unlimited)")
	respectRobots := fs.Bool("respect-robots", false, "Honor robots.txt exclusions")
	userAgent := fs.String("user-agent", config.DefaultUserAgent, "User-Agent header")
	rejectPattern := fs.String("reject-pattern", "", "Regex replacing the built-in trap rules")
	segmentMaxSize := fs.Int64("segment-max-size", config.DefaultSegmentMaxSize, "Segment rotation threshold in bytes")
	stateDir := fs.String("state", "", "Visited-store directory")
	keepStaging := fs.Bool("keep-staging", false, "Keep the archive staging area for debugging")
	configFile := fs.String("config", "", "Optional YAML config file (flags override it)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")
	fs.Parse(args)
	setLogLevel(log, *logLevel)

	cfg := config.DefaultCrawlConfig()
	if *configFile != "" {
		loaded, err := config.LoadCrawlConfig(*configFile)
		if err != nil {
			log.Error(err)
			return 2
		}
		cfg = loaded
	}
	// Explicitly set flags take precedence over the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.OutputDir = *outDir
		case "depth":
			cfg.MaxDepth = *depth
		case "wait":
			cfg.Wait = *wait
		case "random-wait":
			cfg.RandomWait = *randomWait
		case "timeout":
			cfg.Timeout = *timeout
		case "tries":
			cfg.Tries = *tries
		case "max-redirect":
			cfg.MaxRedirect = *maxRedirect
		case "quota":
			cfg.QuotaBytes = *quota
		case "respect-robots":
			cfg.RespectRobots = *respectRobots
		case "user-agent":
			cfg.UserAgent = *userAgent
		case "reject-pattern":
			cfg.RejectPattern = *rejectPattern
		case "segment-max-size":
			cfg.SegmentMaxSize = *segmentMaxSize
		case "state":
			cfg.StateDir = *stateDir
		case "keep-staging":
			cfg.KeepStaging = *keepStaging
		}
	})

	// Everything below must fail before the first network request.
	if *seedSpec == "" {
		log.Error("-seed is required")
		fs.Usage()
		return 2
	}
	if *prefix == "" {
		log.Error("-prefix is required")
		fs.Usage()
		return 2
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Error(err)
		return 2
	}

	entry := logrus.NewEntry(log)
	seeds, err := seed.Resolve(*seedSpec, entry)
	if err != nil {
		log.Error(err)
		return 2
	}

	var override *regexp.Regexp
	if cfg.RejectPattern != "" {
		compiled, err := utils.CompileRegexPatterns([]string{cfg.RejectPattern})
		if err != nil {
			log.Error(err)
			return 2
		}
		override = compiled[0]
	}

	store, err := frontier.NewVisitedStore(cfg.StateDir, *prefix, entry)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer store.Close()

	writer, err := archive.NewWriter(archive.WriterConfig{
		Dir:            cfg.OutputDir,
		Prefix:         *prefix,
		MaxSegmentSize: cfg.SegmentMaxSize,
		KeepStaging:    cfg.KeepStaging,
		Software:       cfg.UserAgent,
	}, entry)
	if err != nil {
		log.Error(err)
		return 1
	}

	output := crawler.NewOutputManager(cfg.OutputDir, *prefix, entry)
	defer func() {
		if err := output.Close(); err != nil {
			log.Warnf("Closing outcome logs: %v", err)
		}
	}()

	client := fetch.NewClient(cfg, entry)
	fetcher := fetch.NewFetcher(client, cfg.Tries, entry)

	deps := crawler.Deps{
		Seeds:   seeds,
		Fetcher: fetcher,
		Delayer: fetch.NewPolitenessDelayer(cfg.Wait, cfg.RandomWait, entry),
		Queue:   frontier.NewQueue(store, entry),
		Store:   store,
		Writer:  writer,
		Output:  output,
		Traps:   crawler.NewTrapMatcher(override),
	}
	if cfg.RespectRobots {
		deps.Robots = fetch.NewRobotsHandler(fetcher, cfg.UserAgent, entry)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	gcCtx, gcCancel := context.WithCancel(ctx)
	defer gcCancel()
	go store.RunGC(gcCtx, 5*time.Minute)

	ctrl := crawler.NewController(cfg, deps, entry)
	summary, err := ctrl.Run(ctx)
	if err != nil {
		log.Errorf("Crawl failed: %v", err)
		return 1
	}
	if summary.Status == models.RunStatusQuotaExceeded {
		log.Info("Stopped at download quota; archive is complete up to the stop point")
	}
	return 0
}

func runExtract(args []string, log *logrus.Logger) int {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)

	segmentDir := fs.String("segments", "", "Directory of archive segments to read (required)")
	outDir := fs.String("out", "", "Output directory for extracted documents (required)")
	tasks := fs.Int("tasks", config.DefaultExtractTasks, "Parallel segment tasks")
	configFile := fs.String("config", "", "Optional YAML config file (flags override it)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")
	fs.Parse(args)
	setLogLevel(log, *logLevel)

	cfg := config.DefaultExtractConfig()
	if *configFile != "" {
		loaded, err := config.LoadExtractConfig(*configFile)
		if err != nil {
			log.Error(err)
			return 2
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "tasks" {
			cfg.Tasks = *tasks
		}
	})

	if *segmentDir == "" {
		log.Error("-segments is required")
		fs.Usage()
		return 2
	}
	if *outDir == "" {
		log.Error("-out is required")
		fs.Usage()
		return 2
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Error(err)
		return 2
	}

	entry := logrus.NewEntry(log)
	sink, err := pipeline.NewDocumentSink(*outDir, entry)
	if err != nil {
		log.Error(err)
		return 1
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	summary, err := pipeline.New(cfg, sink, entry).Run(ctx, *segmentDir)
	if err != nil {
		log.Errorf("Extraction failed: %v", err)
		return 1
	}
	if summary.SegmentsFailed > 0 {
		log.Warnf("%d segment(s) could not be fully read", summary.SegmentsFailed)
	}
	return 0
}
