package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openRunLog opens an append-only log file for this invocation and
// returns a logf that writes to both stdout and the file.
func openRunLog(logsDir string) (func(format string, args ...any), *os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create logs directory %s: %w", logsDir, err)
	}
	name := time.Now().UTC().Format("20060102-150405") + "-run.log"
	f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	logf := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		stamp := time.Now().UTC().Format(time.RFC3339)
		fmt.Println(line)
		fmt.Fprintf(f, "%s %s\n", stamp, line)
	}
	return logf, f, nil
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatViews(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
