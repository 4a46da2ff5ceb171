package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kagehq/echos-sub001/pkg/policy/manager"
)

var validateFlags struct {
	templates string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and policy templates",
	Long: `Validate the configuration file and every policy template in the
template directory without starting the daemon.

Template parse errors are reported per file; the command fails when any
template is invalid.

Examples:
  # Validate the default config and its template directory
  echosd validate

  # Validate a specific template directory
  echosd validate --templates ./policies`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.templates, "templates", "", "override template directory")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Println("✓ Configuration valid")

	dir := cfg.Policy.Path
	if validateFlags.templates != "" {
		dir = validateFlags.templates
	}

	loader := manager.NewTemplateLoader(nil)
	templates, errList, err := loader.LoadFromDirectory(dir)
	if err != nil {
		return fmt.Errorf("failed to read template directory %q: %w", dir, err)
	}

	for _, tmpl := range templates {
		fmt.Printf("✓ %s (%s)\n", tmpl.ID, tmpl.SourceFile)
	}

	if errList != nil && len(errList.Errors) > 0 {
		for _, templateErr := range errList.Errors {
			fmt.Fprintf(os.Stderr, "✗ %v\n", templateErr)
		}
		return fmt.Errorf("%d of %d templates invalid", len(errList.Errors), len(templates)+len(errList.Errors))
	}

	fmt.Printf("✓ %d templates valid\n", len(templates))
	return nil
}
