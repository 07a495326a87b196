package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/torrecon/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/torrecon.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a torrecon configuration file",
		Long: `Init writes a commented .torrecon configuration file with every setting at
its default value.

The file is looked up in the current directory, then in the XDG config
directory (config.yaml), then in the home directory.

Examples:
  # Create .torrecon in the current directory
  torrecon init

  # Create the file at a specific path
  torrecon init -o ~/.config/torrecon/config.yaml

  # Overwrite an existing file
  torrecon init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/torrecon.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit it to set:")
	fmt.Fprintln(out, "  - the Tor SOCKS and control addresses")
	fmt.Fprintln(out, "  - the default scan profile and output directory")
	fmt.Fprintln(out, "  - the proxy scheme (socks5h keeps DNS inside Tor)")
	return nil
}
