package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"shorts-pipeline/internal/config"
	"shorts-pipeline/internal/trackstore"
)

type refreshReport struct {
	ChannelURL string `json:"channel_url"`
	Listed     int    `json:"listed"`
	Added      int    `json:"added"`
	Tracked    int    `json:"tracked_total"`
}

// refresh merges the current channel listing into the tracking file
// without doing any downloads or uploads.
func runRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	configPath := fs.String("config", "pipeline.yaml", "config file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	lock, err := trackstore.AcquireLock(cfg.Paths.TrackingFile)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	store, err := trackstore.Open(cfg.Paths.TrackingFile)
	if err != nil {
		return err
	}

	items, err := newCatalogClient(cfg).ListItems(context.Background(), cfg.ChannelURL)
	if err != nil {
		return fmt.Errorf("list channel catalog: %w", err)
	}
	added, err := store.RefreshCatalog(cfg.ChannelURL, time.Now().UTC().Format(time.RFC3339), items)
	if err != nil {
		return err
	}

	report := refreshReport{
		ChannelURL: cfg.ChannelURL,
		Listed:     len(items),
		Added:      added,
		Tracked:    len(store.Snapshot()),
	}
	if *jsonOut {
		return printJSON(report)
	}
	fmt.Printf("refresh: %d item(s) listed, %d new, %d tracked total\n",
		report.Listed, report.Added, report.Tracked)
	return nil
}
