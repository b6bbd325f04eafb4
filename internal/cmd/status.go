package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status published by a running coordinator",
	Long: `Read the status keys a running coordinator publishes to the shared store and
print them, together with the current coefficient values.`,
	RunE: runStatus,
}

var statusTimeout time.Duration

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Second, "Store timeout")
}

// statusRow is one label/value pair of the status table.
type statusRow struct {
	label string
	value string
	// state marks the runtime state row, which is colored by value.
	state bool
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("store %s unreachable: %w", cfg.Channel.ResolveAddress(), err)
	}

	rows, err := readStatus(ctx, store, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	renderStatus(out, rows, styled)
	return nil
}

func readStatus(ctx context.Context, store channel.Store, cfg *config.Config) ([]statusRow, error) {
	fields := []struct {
		label string
		key   string
	}{
		{"State", channel.KeyRuntimeStatus},
		{"Coefficient", channel.KeyCurrentCoefficient},
		{"Shots", channel.KeyShotCount},
		{"Threshold", channel.KeyShotThreshold},
		{"Connected", channel.KeyConnected},
		{"Last error", channel.KeyLastError},
	}

	var rows []statusRow
	for _, f := range fields {
		v, found, err := store.Get(ctx, f.key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.key, err)
		}
		rows = append(rows, statusRow{label: f.label, value: display(v, found), state: f.key == channel.KeyRuntimeStatus})
	}
	for _, cc := range cfg.EnabledOrder() {
		v, found, err := store.Get(ctx, cc.ChannelKey())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cc.ChannelKey(), err)
		}
		rows = append(rows, statusRow{label: cc.Name, value: display(v, found)})
	}
	return rows, nil
}

func display(v any, found bool) string {
	if !found {
		return "-"
	}
	if f, ok := channel.AsFloat(v); ok {
		return fmt.Sprintf("%g", f)
	}
	if s := fmt.Sprint(v); s != "" {
		return s
	}
	return "-"
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A1A1AA"))
	stateStyle = map[string]lipgloss.Style{
		"WAITING":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E")),
		"OPTIMIZING": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		"ADVANCING":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		"PAUSED":     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EAB308")),
		"DISABLED":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#71717A")),
	}
)

func renderStatus(w io.Writer, rows []statusRow, styled bool) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r.label))
	}

	for _, r := range rows {
		label := r.label + ":" + strings.Repeat(" ", width-len(r.label))
		value := r.value
		if styled {
			label = labelStyle.Render(label)
			if st, ok := stateStyle[value]; ok && r.state {
				value = st.Render(value)
			}
		}
		fmt.Fprintf(w, "%s  %s\n", label, value)
	}
}
