package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/coeftune/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the diagnostic log",
	Long: `View and filter the coordinator's diagnostic log.

Examples:
  # Show the last 50 lines
  coeftune logs

  # Warnings and errors for one coefficient in the last hour
  coeftune logs --level warn --coefficient DragCoefficient --since 1h

  # Everything from one session
  coeftune logs -s 0b7c... -n 0`,
	RunE: runLogs,
}

var (
	logsDir         string
	logsSessionID   string
	logsTail        int
	logsLevel       string
	logsSince       time.Duration
	logsCoefficient string
	logsComponent   string
	logsGrep        string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsDir, "dir", "", "Log directory (default: logging.directory from config)")
	logsCmd.Flags().StringVarP(&logsSessionID, "session", "s", "", "Only this session ID")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsCoefficient, "coefficient", "", "Only lines about this coefficient")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Only lines from this component")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only lines containing this text")
}

func runLogs(cmd *cobra.Command, _ []string) error {
	dir := logsDir
	if dir == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Logging.Directory
	}
	if dir == "" {
		return fmt.Errorf("no log directory: logging goes to stderr unless logging.directory is set")
	}

	entries, err := logging.ReadLogs(dir)
	if err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}

	filter := logging.LogFilter{
		SessionID:   logsSessionID,
		Coefficient: logsCoefficient,
		Component:   logsComponent,
		Contains:    logsGrep,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince > 0 {
		filter.Since = time.Now().Add(-logsSince)
	}
	entries = logging.FilterLogs(entries, filter)

	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintln(out, logging.FormatEntry(e))
	}
	return nil
}
