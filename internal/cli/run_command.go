package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"shorts-pipeline/internal/cache"
	"shorts-pipeline/internal/config"
	"shorts-pipeline/internal/media"
	"shorts-pipeline/internal/notify"
	"shorts-pipeline/internal/origin"
	"shorts-pipeline/internal/pipeline"
	"shorts-pipeline/internal/plan"
	"shorts-pipeline/internal/publish"
	"shorts-pipeline/internal/scrape"
	"shorts-pipeline/internal/trackstore"
)

type runReport struct {
	RunID          string `json:"run_id"`
	ItemsAdded     int    `json:"items_added"`
	ItemsStaged    int    `json:"items_staged"`
	PartsPublished int    `json:"parts_published"`
	ItemsCompleted int    `json:"items_completed"`
	ItemsBlocked   int    `json:"items_blocked"`
	AllCaughtUp    bool   `json:"all_caught_up"`
	DurationSecs   int    `json:"duration_seconds"`
}

func runPipeline(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "pipeline.yaml", "config file path")
	maxUploads := fs.Int("max-uploads", 0, "override max uploads this run (0 = config)")
	maxSync := fs.Int("max-sync", 0, "override max cache syncs this run (0 = config)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *maxUploads > 0 {
		cfg.Run.MaxUploadsPerRun = *maxUploads
	}
	if *maxSync > 0 {
		cfg.Run.MaxSyncPerRun = *maxSync
	}

	logf, logFile, err := openRunLog(cfg.Paths.Logs)
	if err != nil {
		return err
	}
	defer logFile.Close()
	if *jsonOut {
		logf = func(format string, args ...any) {
			fmt.Fprintf(logFile, "%s %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
		}
	}

	ctx := context.Background()
	gateway, closeGateway, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	store, err := trackstore.Open(cfg.Paths.TrackingFile)
	if err != nil {
		return err
	}

	publisher, err := publish.NewCommandPublisher(cfg.Publish.Command)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Nop{}
	if tg := notify.NewTelegramFromEnv(logf); tg.Enabled() {
		notifier = tg
	}

	exec := &pipeline.Executor{
		Store: store,
		Cache: gateway,
		Origin: origin.New(origin.Options{
			CookiesPath: cfg.Origin.CookiesPath,
			Quality:     cfg.Origin.Quality,
			LogWriter:   logFile,
		}),
		Renderer:  media.NewRenderer(cfg.Render),
		Publisher: publisher,
		Notifier:  notifier,
		Probe:     media.Duration,
		Extract:   media.ExtractSegment,
		Plan: plan.Spec{
			SegmentSeconds: cfg.Segments.LengthSeconds,
			MinTailSeconds: cfg.Segments.MinTailSeconds,
			MaxSegments:    cfg.Segments.MaxPerItem,
		},
		Cfg:  cfg,
		Logf: logf,
	}

	orch := &pipeline.Orchestrator{
		Store:    store,
		Catalog:  newCatalogClient(cfg),
		Executor: exec,
		Notifier: notifier,
		Logf:     logf,
	}

	res, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	report := runReport{
		RunID:          res.RunID,
		ItemsAdded:     res.ItemsAdded,
		ItemsStaged:    res.ItemsStaged,
		PartsPublished: res.PartsPublished,
		ItemsCompleted: res.ItemsCompleted,
		ItemsBlocked:   res.ItemsBlocked,
		AllCaughtUp:    res.AllCaughtUp,
		DurationSecs:   int(res.FinishedAt.Sub(res.StartedAt).Seconds()),
	}
	if *jsonOut {
		return printJSON(report)
	}
	fmt.Println()
	fmt.Printf("run %s done in %ds\n", report.RunID, report.DurationSecs)
	fmt.Printf("  catalog:   %d new item(s)\n", report.ItemsAdded)
	fmt.Printf("  staged:    %d item(s)\n", report.ItemsStaged)
	fmt.Printf("  published: %d segment(s)\n", report.PartsPublished)
	fmt.Printf("  completed: %d item(s)\n", report.ItemsCompleted)
	fmt.Printf("  blocked:   %d item(s)\n", report.ItemsBlocked)
	if report.AllCaughtUp {
		fmt.Println("  all items are fully published")
	}
	return nil
}

func newGateway(ctx context.Context, cfg config.Config) (cache.Gateway, func(), error) {
	switch cfg.Cache.Backend {
	case "gridfs":
		store, err := cache.NewGridFSStore(ctx, cfg.Cache.MongoURI, cfg.Cache.Database, cfg.Cache.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	default:
		store, err := cache.NewDirStore(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func newCatalogClient(cfg config.Config) *scrape.Client {
	opts := scrape.Options{
		Mode:        cfg.Catalog.Mode,
		CookiesPath: cfg.Origin.CookiesPath,
	}
	if cfg.Catalog.MinPublished != "" {
		if at, err := parseDate(cfg.Catalog.MinPublished); err == nil {
			opts.MinPublished = at
		}
	}
	return scrape.New(opts)
}

func parseDate(s string) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, s); err == nil {
		return at, nil
	}
	return time.Parse("2006-01-02", s)
}
