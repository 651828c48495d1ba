package cli

import (
	"flag"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shorts-pipeline/internal/config"
	"shorts-pipeline/internal/trackstore"
)

var (
	browseHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	browseHintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	browseBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// browse is a read-only terminal view of the tracking file. Edits go
// through the pipeline, not through here; the view only reloads.
func runBrowse(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	configPath := fs.String("config", "pipeline.yaml", "config file path")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	m := newBrowseModel(cfg.Paths.TrackingFile)
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

type browseRowsMsg struct {
	rows []table.Row
	err  error
}

type browseModel struct {
	trackingPath string
	table        table.Model
	status       string
	width        int
	height       int
}

func newBrowseModel(trackingPath string) browseModel {
	columns := []table.Column{
		{Title: "ID", Width: 13},
		{Title: "Status", Width: 14},
		{Title: "Reason", Width: 20},
		{Title: "Parts", Width: 7},
		{Title: "Views", Width: 8},
		{Title: "Length", Width: 8},
		{Title: "Title", Width: 44},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("212"))
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	t.SetStyles(styles)
	return browseModel{trackingPath: trackingPath, table: t}
}

func (m browseModel) Init() tea.Cmd {
	return loadBrowseRows(m.trackingPath)
}

func loadBrowseRows(trackingPath string) tea.Cmd {
	return func() tea.Msg {
		store, err := trackstore.Open(trackingPath)
		if err != nil {
			return browseRowsMsg{err: err}
		}
		var rows []table.Row
		for _, id := range store.SortedIDs() {
			rec, ok := store.Get(id)
			if !ok {
				continue
			}
			progress := "?"
			if rec.TotalParts > 0 {
				progress = fmt.Sprintf("%d/%d", len(rec.PartsUploaded), rec.TotalParts)
			}
			length := "?"
			if rec.DurationSeconds > 0 {
				length = formatDuration(rec.DurationSeconds)
			}
			rows = append(rows, table.Row{
				rec.ItemID,
				rec.Status,
				rec.BlockReason,
				progress,
				formatViews(rec.Views),
				length,
				rec.Title,
			})
		}
		return browseRowsMsg{rows: rows}
	}
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Height > 8 {
			m.table.SetHeight(msg.Height - 6)
		}
		return m, nil
	case browseRowsMsg:
		if msg.err != nil {
			m.status = "load failed: " + msg.err.Error()
			return m, nil
		}
		m.table.SetRows(msg.rows)
		m.status = fmt.Sprintf("%d item(s)", len(msg.rows))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.status = "reloading..."
			return m, loadBrowseRows(m.trackingPath)
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m browseModel) View() string {
	header := browseHeaderStyle.Render("shorts-pipeline browse") +
		"  " + browseHintStyle.Render(m.trackingPath)
	hints := browseHintStyle.Render("up/down: move   r: reload   q: quit")
	body := browseBoxStyle.Render(m.table.View())
	status := browseHintStyle.Render(m.status)
	return lipgloss.JoinVertical(lipgloss.Left, header, hints, body, status)
}
