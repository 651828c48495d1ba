package cli

import (
	"flag"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"shorts-pipeline/internal/config"
	"shorts-pipeline/internal/model"
	"shorts-pipeline/internal/trackstore"
)

var (
	statusTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	statusBlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	statusActiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
)

type statusItemReport struct {
	ItemID          string  `json:"item_id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	BlockReason     string  `json:"block_reason,omitempty"`
	Uploaded        int     `json:"uploaded"`
	TotalParts      int     `json:"total_parts"`
	Views           int64   `json:"views"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

type statusReport struct {
	ChannelURL string             `json:"channel_url"`
	LastScrape string             `json:"last_scrape,omitempty"`
	Counts     map[string]int     `json:"counts"`
	Items      []statusItemReport `json:"items,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "pipeline.yaml", "config file path")
	all := fs.Bool("all", false, "list every item, including done ones")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	store, err := trackstore.Open(cfg.Paths.TrackingFile)
	if err != nil {
		return err
	}

	report := statusReport{
		ChannelURL: store.ChannelURL(),
		LastScrape: store.LastScrape(),
		Counts:     store.Counts(),
	}
	for _, id := range store.SortedIDs() {
		rec, ok := store.Get(id)
		if !ok {
			continue
		}
		if !*all && rec.Status == model.StatusDone {
			continue
		}
		report.Items = append(report.Items, statusItemReport{
			ItemID:          rec.ItemID,
			Title:           rec.Title,
			Status:          rec.Status,
			BlockReason:     rec.BlockReason,
			Uploaded:        len(rec.PartsUploaded),
			TotalParts:      rec.TotalParts,
			Views:           rec.Views,
			DurationSeconds: rec.DurationSeconds,
		})
	}

	if *jsonOut {
		return printJSON(report)
	}

	fmt.Println(statusTitleStyle.Render("shorts-pipeline status"))
	if report.ChannelURL != "" {
		fmt.Println(statusMutedStyle.Render("channel: " + report.ChannelURL))
	}
	if report.LastScrape != "" {
		fmt.Println(statusMutedStyle.Render("last refresh: " + report.LastScrape))
	}
	fmt.Println()
	fmt.Println(renderCountsLine(report.Counts))
	fmt.Println()
	if len(report.Items) == 0 {
		fmt.Println(statusDoneStyle.Render("nothing outstanding"))
		return nil
	}
	for _, item := range report.Items {
		fmt.Println(renderStatusLine(item))
	}
	return nil
}

func renderCountsLine(counts map[string]int) string {
	ordered := []string{
		model.StatusNew, model.StatusCachePending, model.StatusInProgress,
		model.StatusBlocked, model.StatusDone,
	}
	parts := make([]string, 0, len(ordered))
	for _, status := range ordered {
		parts = append(parts, fmt.Sprintf("%s=%d", status, counts[status]))
	}
	return strings.Join(parts, "  ")
}

func renderStatusLine(item statusItemReport) string {
	label := item.Status
	switch item.Status {
	case model.StatusDone:
		label = statusDoneStyle.Render(label)
	case model.StatusBlocked:
		label = statusBlockedStyle.Render(fmt.Sprintf("%s (%s)", item.Status, item.BlockReason))
	case model.StatusInProgress:
		label = statusActiveStyle.Render(label)
	}
	progress := "?"
	if item.TotalParts > 0 {
		progress = fmt.Sprintf("%d/%d", item.Uploaded, item.TotalParts)
	}
	length := "?"
	if item.DurationSeconds > 0 {
		length = formatDuration(item.DurationSeconds)
	}
	return fmt.Sprintf("  %-13s %s %s %s",
		item.ItemID, label,
		statusMutedStyle.Render(progress+" parts, "+length+", "+formatViews(item.Views)+" views"),
		item.Title)
}
