package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the effective settings",
	Long: `Load the configuration from --conf (or defaults), apply XRPLSYNCD_
environment overrides, validate it and print the effective values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		source := cfg.GetConfigPath()
		if source == "" {
			source = "(defaults)"
		}
		fmt.Fprintf(out, "Configuration OK: %s\n", source)
		for _, line := range cfg.Summary() {
			fmt.Fprintf(out, "  %s\n", line)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
