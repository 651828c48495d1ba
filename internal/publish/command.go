package publish

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandPublisher runs a configured uploader command per segment. The
// argv template may reference {file}, {title}, {description}, {tags},
// {category}, and {privacy}; the command prints the external reference of
// the published segment as the last non-empty line of stdout.
type CommandPublisher struct {
	argv []string
}

func NewCommandPublisher(argv []string) (*CommandPublisher, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("publish command is required")
	}
	return &CommandPublisher{argv: argv}, nil
}

func (p *CommandPublisher) Publish(ctx context.Context, localPath string, meta Metadata) (string, error) {
	argv := ExpandArgv(p.argv, localPath, meta)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", classifyPublishError(err, stderr.String()+"\n"+stdout.String())
	}

	ref := lastNonEmptyLine(stdout.String())
	if ref == "" {
		return "", fmt.Errorf("%w: uploader printed no reference", ErrRejected)
	}
	return ref, nil
}

// ExpandArgv substitutes the metadata placeholders into the argv template.
func ExpandArgv(argv []string, localPath string, meta Metadata) []string {
	r := strings.NewReplacer(
		"{file}", localPath,
		"{title}", meta.Title,
		"{description}", meta.Description,
		"{tags}", strings.Join(meta.Tags, ","),
		"{category}", meta.CategoryID,
		"{privacy}", meta.Privacy,
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

func classifyPublishError(runErr error, output string) error {
	text := strings.ToLower(output)
	switch {
	case containsAny(text, "quota", "rate limit", "429", "too many requests"):
		return fmt.Errorf("%w: %s", ErrRateLimited, truncate(strings.TrimSpace(output), 400))
	case containsAny(text, "401", "403", "unauthorized", "invalid_grant", "token expired"):
		return fmt.Errorf("%w: %s", ErrAuthExpired, truncate(strings.TrimSpace(output), 400))
	case containsAny(text, "rejected", "invalid metadata", "unsupported"):
		return fmt.Errorf("%w: %s", ErrRejected, truncate(strings.TrimSpace(output), 400))
	default:
		return fmt.Errorf("publish command failed: %w: %s", runErr, truncate(strings.TrimSpace(output), 400))
	}
}

func containsAny(text string, hints ...string) bool {
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
