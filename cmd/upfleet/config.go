//nolint:forbidigo // CLI command needs fmt.Print* for user output
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upfleet/upfleet/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Upfleet configuration",
		Long:  "View and manage Upfleet server configuration settings",
	}

	cmd.AddCommand(
		newConfigShowCommand(),
		newConfigValidateCommand(),
	)

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current Upfleet configuration including all settings from defaults and environment variables",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadStandardConfig()
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return displayConfigJSON(cfg)
			case "table":
				return displayConfigTable(cfg)
			default:
				return fmt.Errorf("unknown format: %s. Supported formats: table, json", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")

	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long:  "Check if the current configuration is valid and all required directories are accessible",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadStandardConfig()
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}

			fmt.Println("✓ Configuration is valid")

			fmt.Println("\nChecking directory permissions...")

			errors := 0

			if cfg.ReportStore.Type == "file" {
				if err := checkDirWritable(cfg.ReportStore.File.Dir); err != nil {
					fmt.Printf("✗ Report Directory (%s): %v\n", cfg.ReportStore.File.Dir, err)
					errors++
				} else {
					fmt.Printf("✓ Report Directory (%s): writable\n", cfg.ReportStore.File.Dir)
				}
			}

			if cfg.GetLogPath() != "" {
				logDir := filepath.Dir(cfg.GetLogPath())
				if err := checkDirWritable(logDir); err != nil {
					fmt.Printf("✗ Log Directory (%s): %v\n", logDir, err)
					errors++
				} else {
					fmt.Printf("✓ Log Directory (%s): writable\n", logDir)
				}
			}

			if errors > 0 {
				return fmt.Errorf("found %d configuration errors", errors)
			}

			fmt.Println("\n✓ All configuration checks passed")
			return nil
		},
	}

	return cmd
}

// Helper functions

func displayConfigJSON(cfg *config.ServerConfig) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg.GetSanitized()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func displayConfigTable(cfg *config.ServerConfig) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "SETTING\tVALUE") // Ignore error - output formatting
	_, _ = fmt.Fprintln(w, "-------\t-----") // Ignore error - output formatting

	_, _ = fmt.Fprintf(w, "Port\t%d\n", cfg.Port)   // Ignore error - output formatting
	_, _ = fmt.Fprintf(w, "Debug\t%t\n", cfg.Debug) // Ignore error - output formatting

	_, _ = fmt.Fprintf(w, "Log File\t%s\n", cfg.GetLogPath()) // Ignore error - output formatting

	_, _ = fmt.Fprintf(w, "Report Store Type\t%s\n", cfg.ReportStore.Type)     // Ignore error - output formatting
	_, _ = fmt.Fprintf(w, "Report Directory\t%s\n", cfg.ReportStore.File.Dir)  // Ignore error - output formatting
	_, _ = fmt.Fprintf(w, "Report S3 Bucket\t%s\n", cfg.ReportStore.S3.Bucket) // Ignore error - output formatting

	_, _ = fmt.Fprintf(w, "Lock Type\t%s\n", cfg.Locking.Type)             // Ignore error - output formatting
	_, _ = fmt.Fprintf(w, "Lock Table\t%s\n", cfg.Locking.Table)           // Ignore error - output formatting
	_, _ = fmt.Fprintf(w, "Lock TTL Seconds\t%d\n", cfg.Locking.TTLSeconds) // Ignore error - output formatting

	_, _ = fmt.Fprintf(w, "Queue Type\t%s\n", cfg.Queue.Type) // Ignore error - output formatting

	_, _ = fmt.Fprintf(w, "Daemon Mode\t%t\n", cfg.DaemonMode) // Ignore error - output formatting
	_, _ = fmt.Fprintf(w, "PID File\t%s\n", cfg.PIDFile)       // Ignore error - output formatting

	_ = w.Flush() // Ignore error - output formatting

	fmt.Println("\nEnvironment Variables:")
	printEnvironmentVariables(cfg)

	return nil
}

// printEnvironmentVariables dynamically prints environment variables from struct tags
func printEnvironmentVariables(cfg *config.ServerConfig) {
	vars := collectEnvVars(reflect.TypeOf(*cfg), reflect.ValueOf(*cfg))

	// Find the longest env var name for alignment
	maxLen := 0
	for _, v := range vars {
		if len(v.name) > maxLen {
			maxLen = len(v.name)
		}
	}

	for _, v := range vars {
		fmt.Printf("  %-*s - %s\n", maxLen, v.name, v.description)
	}
}

// collectEnvVars recursively collects environment variables from struct tags
func collectEnvVars(t reflect.Type, v reflect.Value) []struct{ name, description string } {
	var vars []struct{ name, description string }

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if envTag := field.Tag.Get("env"); envTag != "" {
			desc := field.Tag.Get("desc")
			if desc == "" {
				desc = strings.Join(camelCaseToWords(field.Name), " ")
			}
			vars = append(vars, struct{ name, description string }{
				name:        envTag,
				description: desc,
			})
		}

		if field.Type.Kind() == reflect.Struct {
			vars = append(vars, collectEnvVars(field.Type, fieldValue)...)
		}
	}

	return vars
}

// camelCaseToWords converts CamelCase to space-separated words
func camelCaseToWords(s string) []string {
	var words []string
	var currentWord []rune

	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			if len(currentWord) > 0 {
				words = append(words, string(currentWord))
			}
			currentWord = []rune{r}
		} else {
			currentWord = append(currentWord, r)
		}
	}

	if len(currentWord) > 0 {
		words = append(words, string(currentWord))
	}

	return words
}

// checkDirWritable performs a read-only check on a directory for validation
func checkDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("does not exist")
		}
		return fmt.Errorf("failed to check directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}

	// Check if writable by creating a temp file
	tempFile := filepath.Join(path, ".write_test")
	file, err := os.Create(tempFile) // #nosec G304 -- tempFile is constructed from safe path components
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_ = file.Close()        // Ignore error - cleanup operation
	_ = os.Remove(tempFile) // Ignore error - cleanup operation

	return nil
}
