package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without connecting",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if path == "" {
		path = "(defaults)"
	}

	out := cmd.OutOrStdout()
	errs := cfg.Validate()
	if len(errs) == 0 {
		fmt.Fprintf(out, "%s: OK, %d coefficients in tuning order\n", path, len(cfg.EnabledOrder()))
		return nil
	}

	fmt.Fprintf(out, "%s: %d problem(s)\n", path, len(errs))
	for _, e := range errs {
		fmt.Fprintf(out, "  %s\n", e.Error())
	}
	return fmt.Errorf("invalid configuration")
}
