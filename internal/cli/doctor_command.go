package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"shorts-pipeline/internal/config"
	"shorts-pipeline/internal/origin"
)

type doctorReport struct {
	ConfigOK     bool   `json:"config_ok"`
	ConfigError  string `json:"config_error,omitempty"`
	YTDLPFound   bool   `json:"yt_dlp_found"`
	YTDLPPath    string `json:"yt_dlp_path,omitempty"`
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
	DirsWritable bool   `json:"dirs_writable"`
	DirsError    string `json:"dirs_error,omitempty"`
	CookiesSet   bool   `json:"cookies_set"`
	NotifierSet  bool   `json:"notifier_set"`
}

// doctor runs preflight checks so a cron deployment fails loudly before
// the first scheduled run does.
func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "pipeline.yaml", "config file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	report := doctorReport{}
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		report.ConfigError = cfgErr.Error()
		cfg = config.Default()
	} else {
		report.ConfigOK = true
	}

	deps := origin.DependencyStatus()
	report.YTDLPFound = deps.YTDLPFound
	report.YTDLPPath = deps.YTDLPPath
	report.FFmpegFound = deps.FFmpegFound
	report.FFmpegPath = deps.FFmpegPath
	report.FFprobeFound = deps.FFprobeFound
	report.FFprobePath = deps.FFprobePath

	if err := checkDirsWritable(cfg); err != nil {
		report.DirsError = err.Error()
	} else {
		report.DirsWritable = true
	}
	report.CookiesSet = cfg.Origin.CookiesPath != ""
	report.NotifierSet = os.Getenv("TELEGRAM_BOT_TOKEN") != "" && os.Getenv("TELEGRAM_CHAT_ID") != ""

	if *jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printDoctorReport(*configPath, report)
	}

	if !report.ConfigOK || !report.YTDLPFound || !report.FFmpegFound || !report.FFprobeFound || !report.DirsWritable {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}

func checkDirsWritable(cfg config.Config) error {
	dirs := []string{
		cfg.Paths.Downloads,
		cfg.Paths.Processed,
		cfg.Paths.Logs,
		filepath.Dir(cfg.Paths.TrackingFile),
	}
	if cfg.Cache.Backend == "fsdir" {
		dirs = append(dirs, cfg.Cache.Dir)
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		probe := filepath.Join(dir, ".doctor-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return fmt.Errorf("write to %s: %w", dir, err)
		}
		_ = os.Remove(probe)
	}
	return nil
}

func printDoctorReport(configPath string, report doctorReport) {
	check := func(ok bool, label, detail string) {
		mark := "ok  "
		if !ok {
			mark = "FAIL"
		}
		if detail != "" {
			fmt.Printf("  [%s] %-18s %s\n", mark, label, detail)
			return
		}
		fmt.Printf("  [%s] %s\n", mark, label)
	}
	fmt.Println("doctor: preflight checks")
	check(report.ConfigOK, "config", firstNonEmpty(report.ConfigError, configPath))
	check(report.YTDLPFound, "yt-dlp", report.YTDLPPath)
	check(report.FFmpegFound, "ffmpeg", report.FFmpegPath)
	check(report.FFprobeFound, "ffprobe", report.FFprobePath)
	check(report.DirsWritable, "work directories", report.DirsError)
	check(report.CookiesSet, "origin cookies", "optional, needed for gated content")
	check(report.NotifierSet, "telegram notifier", "optional")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
